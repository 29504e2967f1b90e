package trade

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/pricing"
)

const (
	erc20ABIJSON = `[{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

	routerABIJSON = `[{"inputs":[{"internalType":"address[]","name":"_path","type":"address[]"},{"internalType":"uint256","name":"_amountIn","type":"uint256"},{"internalType":"uint256","name":"_minOut","type":"uint256"},{"internalType":"address","name":"_receiver","type":"address"}],"name":"swap","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
)

var (
	erc20ABI  abi.ABI
	routerABI abi.ABI

	// ErrNonPositiveMinOut refuses orders whose minimum output is zero or
	// negative; such an order must never reach the chain.
	ErrNonPositiveMinOut = errors.New("trade: min out must be positive")
	// ErrSamePair refuses swaps of a token into itself.
	ErrSamePair = errors.New("trade: token_in and token_out must differ")
)

func init() {
	var err error
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	if routerABI, err = abi.JSON(strings.NewReader(routerABIJSON)); err != nil {
		panic("failed to parse GMX router ABI: " + err.Error())
	}
}

// Options parameterise the swap executor.
type Options struct {
	RPCURL        string
	ChainID       int64
	RouterAddress string
	PrivateKey    string
	Receiver      string
	Timeout       time.Duration
}

// Order is a fully resolved swap ready for submission. MinOut has already
// been computed by the caller from an oracle quote.
type Order struct {
	TokenIn  pricing.Token
	TokenOut pricing.Token
	AmountIn decimal.Decimal
	MinOut   decimal.Decimal
}

// Receipt reports the transactions issued for one order.
type Receipt struct {
	ApproveTx common.Hash
	SwapTx    common.Hash
}

// Executor submits approve-then-swap transaction pairs against the GMX
// router.
type Executor struct {
	opts     Options
	key      *ecdsa.PrivateKey
	from     common.Address
	receiver common.Address
	router   common.Address
	logger   zerolog.Logger

	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewExecutor validates the signing key and builds an executor.
func NewExecutor(opts Options, logger zerolog.Logger) (*Executor, error) {
	if opts.RPCURL == "" {
		return nil, errors.New("trade: rpc url not configured")
	}
	if !common.IsHexAddress(opts.RouterAddress) {
		return nil, fmt.Errorf("trade: invalid router address %q", opts.RouterAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("trade: parse private key: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	receiver := from
	if opts.Receiver != "" {
		if !common.IsHexAddress(opts.Receiver) {
			return nil, fmt.Errorf("trade: invalid receiver address %q", opts.Receiver)
		}
		receiver = common.HexToAddress(opts.Receiver)
	}

	return &Executor{
		opts:     opts,
		key:      key,
		from:     from,
		receiver: receiver,
		router:   common.HexToAddress(opts.RouterAddress),
		logger:   logger.With().Str("component", "trade_executor").Logger(),
	}, nil
}

// Swap approves the router for amountIn of tokenIn and swaps along the
// [tokenIn, tokenOut] path with the supplied min out. Both transactions are
// waited for; a reverted swap is an error.
func (e *Executor) Swap(ctx context.Context, order Order) (Receipt, error) {
	if order.AmountIn.Sign() <= 0 {
		return Receipt{}, errors.New("trade: amount in must be positive")
	}
	if order.MinOut.Sign() <= 0 {
		return Receipt{}, ErrNonPositiveMinOut
	}
	if order.TokenIn.Address == order.TokenOut.Address {
		return Receipt{}, ErrSamePair
	}

	amountAtoms, err := toAtoms(order.AmountIn, order.TokenIn.Decimals)
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: amount in: %w", err)
	}
	minAtoms, err := toAtoms(order.MinOut, order.TokenOut.Decimals)
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: min out: %w", err)
	}
	if minAtoms.Sign() <= 0 {
		return Receipt{}, ErrNonPositiveMinOut
	}

	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return Receipt{}, err
	}

	e.logger.Info().Str("token_in", order.TokenIn.Symbol).
		Str("token_out", order.TokenOut.Symbol).
		Str("amount_in", order.AmountIn.String()).
		Str("min_out", order.MinOut.String()).
		Msg("submitting swap")

	approvePayload, err := erc20ABI.Pack("approve", e.router, amountAtoms)
	if err != nil {
		return Receipt{}, err
	}
	approveTx, err := e.sendTx(ctx, client, order.TokenIn.Address, approvePayload)
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: approve: %w", err)
	}
	if err := e.waitMined(ctx, client, approveTx); err != nil {
		return Receipt{ApproveTx: approveTx.Hash()}, fmt.Errorf("trade: approve: %w", err)
	}
	e.logger.Info().Str("tx", approveTx.Hash().Hex()).Msg("approve confirmed")

	path := []common.Address{order.TokenIn.Address, order.TokenOut.Address}
	swapPayload, err := routerABI.Pack("swap", path, amountAtoms, minAtoms, e.receiver)
	if err != nil {
		return Receipt{ApproveTx: approveTx.Hash()}, err
	}
	swapTx, err := e.sendTx(ctx, client, e.router, swapPayload)
	if err != nil {
		return Receipt{ApproveTx: approveTx.Hash()}, fmt.Errorf("trade: swap: %w", err)
	}
	if err := e.waitMined(ctx, client, swapTx); err != nil {
		return Receipt{ApproveTx: approveTx.Hash(), SwapTx: swapTx.Hash()}, fmt.Errorf("trade: swap: %w", err)
	}
	e.logger.Info().Str("tx", swapTx.Hash().Hex()).Msg("swap confirmed")

	return Receipt{ApproveTx: approveTx.Hash(), SwapTx: swapTx.Hash()}, nil
}

func (e *Executor) sendTx(ctx context.Context, client *ethclient.Client, to common.Address, payload []byte) (*types.Transaction, error) {
	nonce, err := client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &to, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(e.opts.ChainID)), e.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

func (e *Executor) waitMined(ctx context.Context, client *ethclient.Client, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return nil
}

func (e *Executor) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

// toAtoms converts a human amount to integer token units, truncating any
// dust below the token's precision.
func toAtoms(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	atoms := amount.Shift(decimals).Truncate(0)
	if atoms.Sign() <= 0 {
		return nil, errors.New("amount rounds to zero at token precision")
	}
	return atoms.BigInt(), nil
}
