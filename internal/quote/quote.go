package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"gmx-trade-agent/internal/pricing"
)

// outputPrecision is the number of fractional digits kept in computed
// amounts. Results are formatted to this precision and reparsed so that a
// caller re-reading the printed amount sees exactly the returned value.
const outputPrecision = 12

// DefaultSlippage is applied when an order carries no explicit tolerance.
var DefaultSlippage = decimal.NewFromFloat(0.02)

var (
	// ErrNonPositiveAmount rejects zero or negative input amounts.
	ErrNonPositiveAmount = errors.New("quote: amount must be positive")
	// ErrNonPositiveOutput rejects computed outputs that round to zero or
	// below. An order with such an output must never reach the executor.
	ErrNonPositiveOutput = errors.New("quote: computed output must be positive")
	// ErrInvalidSlippage rejects slippage fractions outside [0, 1).
	ErrInvalidSlippage = errors.New("quote: slippage must be in [0, 1)")
)

// Calculator converts a pair of oracle prices into trade quantities. It holds
// no state beyond the injected price source and is safe for concurrent use.
type Calculator struct {
	source pricing.PriceSource
}

// NewCalculator wires a price source into a Calculator.
func NewCalculator(source pricing.PriceSource) *Calculator {
	return &Calculator{source: source}
}

// ExpectedOutput computes amountIn * price(tokenIn) / price(tokenOut). The
// two price reads are independent, not atomic with respect to each other.
// Price source errors propagate unchanged; there is no retry.
func (c *Calculator) ExpectedOutput(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if amountIn.Sign() <= 0 {
		return decimal.Decimal{}, ErrNonPositiveAmount
	}

	priceIn, err := c.source.GetPrice(ctx, tokenIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	priceOut, err := c.source.GetPrice(ctx, tokenOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if priceOut.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("quote: price for %s is not positive", tokenOut)
	}

	out, err := roundFixed(amountIn.Mul(priceIn).Div(priceOut))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if out.Sign() <= 0 {
		return decimal.Decimal{}, ErrNonPositiveOutput
	}
	return out, nil
}

// MinOut computes the minimum acceptable output after applying a slippage
// tolerance to the expected output.
func (c *Calculator) MinOut(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage decimal.Decimal) (decimal.Decimal, error) {
	if slippage.Sign() < 0 || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, ErrInvalidSlippage
	}

	expected, err := c.ExpectedOutput(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return decimal.Decimal{}, err
	}

	min, err := roundFixed(expected.Mul(decimal.NewFromInt(1).Sub(slippage)))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if min.Sign() <= 0 {
		return decimal.Decimal{}, ErrNonPositiveOutput
	}
	return min, nil
}

// roundFixed formats the value to the fixed precision and reparses it, so
// the returned decimal carries exactly the digits a downstream consumer of
// the rendered amount would see.
func roundFixed(v decimal.Decimal) (decimal.Decimal, error) {
	fixed, err := decimal.NewFromString(v.StringFixed(outputPrecision))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("quote: reparse fixed amount: %w", err)
	}
	return fixed, nil
}
