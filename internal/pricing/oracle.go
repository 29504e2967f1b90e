package pricing

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	vaultABIJSON = `[{"inputs":[{"internalType":"address","name":"_token","type":"address"}],"name":"getMaxPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"_token","type":"address"}],"name":"getMinPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	// GMX vault prices are fixed point with 30 decimals.
	vaultPriceDecimals = 30
)

var vaultABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic("failed to parse GMX vault ABI: " + err.Error())
	}
	vaultABI = parsed
}

// OracleOptions parameterise the on-chain price source.
type OracleOptions struct {
	RPCURL       string
	VaultAddress string
	Timeout      time.Duration
}

// VaultOracle reads spot prices from the GMX Vault contract on Arbitrum.
type VaultOracle struct {
	opts      OracleOptions
	registry  *Registry
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewVaultOracle builds a vault-backed price source.
func NewVaultOracle(opts OracleOptions, registry *Registry, logger zerolog.Logger) *VaultOracle {
	return &VaultOracle{
		opts:     opts,
		registry: registry,
		logger:   logger.With().Str("component", "vault_oracle").Logger(),
	}
}

// GetPrice retrieves the current USD price for a configured token symbol.
func (o *VaultOracle) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.opts.RPCURL == "" {
		return decimal.Decimal{}, errors.New("arbitrum rpc url not configured")
	}
	if o.opts.VaultAddress == "" {
		return decimal.Decimal{}, errors.New("gmx vault address not configured")
	}

	token, err := o.registry.Lookup(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	payload, err := vaultABI.Pack("getMaxPrice", token.Address)
	if err != nil {
		return decimal.Decimal{}, err
	}

	vault := common.HexToAddress(o.opts.VaultAddress)
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	outputs, err := vaultABI.Unpack("getMaxPrice", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, errors.New("unexpected getMaxPrice response")
	}

	raw, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode getMaxPrice output")
	}

	price := decimal.NewFromBigInt(raw, -vaultPriceDecimals)
	if err := checkBand(token, price); err != nil {
		return decimal.Decimal{}, err
	}

	o.logger.Debug().Str("symbol", token.Symbol).Str("price_usd", price.String()).Msg("vault price read")
	return price, nil
}

func (o *VaultOracle) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ PriceSource = (*VaultOracle)(nil)
