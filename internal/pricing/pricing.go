package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownToken indicates the symbol is not configured.
	ErrUnknownToken = errors.New("pricing: unknown token symbol")
	// ErrPriceOutOfRange indicates the oracle returned a price outside the
	// token's configured sanity band.
	ErrPriceOutOfRange = errors.New("pricing: price outside sanity band")
)

// PriceSource returns the current USD price for a token symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TokenSpec mirrors one configured token entry.
type TokenSpec struct {
	Symbol   string
	Address  string
	Decimals int32
	MinPrice float64
	MaxPrice float64
}

// Token is a resolved registry entry.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// Registry resolves case-insensitive token symbols to on-chain metadata.
type Registry struct {
	tokens map[string]Token
}

// NewRegistry builds a Registry from configured token specs.
func NewRegistry(specs []TokenSpec) (*Registry, error) {
	tokens := make(map[string]Token, len(specs))
	for _, spec := range specs {
		symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))
		if symbol == "" {
			return nil, errors.New("pricing: token spec missing symbol")
		}
		if !common.IsHexAddress(spec.Address) {
			return nil, fmt.Errorf("pricing: token %s has invalid address %q", symbol, spec.Address)
		}
		if _, exists := tokens[symbol]; exists {
			return nil, fmt.Errorf("pricing: token %s configured twice", symbol)
		}
		tokens[symbol] = Token{
			Symbol:   symbol,
			Address:  common.HexToAddress(spec.Address),
			Decimals: spec.Decimals,
			MinPrice: decimal.NewFromFloat(spec.MinPrice),
			MaxPrice: decimal.NewFromFloat(spec.MaxPrice),
		}
	}
	return &Registry{tokens: tokens}, nil
}

// Lookup resolves a symbol, ignoring case and surrounding whitespace.
func (r *Registry) Lookup(symbol string) (Token, error) {
	token, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return token, nil
}

// Symbols returns all configured symbols.
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// checkBand validates a price against the token's sanity band. A zero max
// disables the upper bound.
func checkBand(token Token, price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: %s price %s is not positive", ErrPriceOutOfRange, token.Symbol, price)
	}
	if token.MinPrice.Sign() > 0 && price.LessThan(token.MinPrice) {
		return fmt.Errorf("%w: %s price %s below %s", ErrPriceOutOfRange, token.Symbol, price, token.MinPrice)
	}
	if token.MaxPrice.Sign() > 0 && price.GreaterThan(token.MaxPrice) {
		return fmt.Errorf("%w: %s price %s above %s", ErrPriceOutOfRange, token.Symbol, price, token.MaxPrice)
	}
	return nil
}
