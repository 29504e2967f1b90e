package app

import (
	"context"
	"fmt"
	"os"
)

// Quote prints the expected and minimum acceptable output for a swap.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) error {
	calculator, _, err := a.newCalculator()
	if err != nil {
		return err
	}

	slippage := a.defaultSlippage()
	if opts.Slippage != nil {
		slippage = *opts.Slippage
	}

	expected, err := calculator.ExpectedOutput(ctx, opts.TokenIn, opts.TokenOut, opts.AmountIn)
	if err != nil {
		return err
	}
	minOut, err := calculator.MinOut(ctx, opts.TokenIn, opts.TokenOut, opts.AmountIn, slippage)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s %s -> %s\n", opts.AmountIn.String(), opts.TokenIn, opts.TokenOut)
	fmt.Fprintf(os.Stdout, "expected out: %s\n", expected.String())
	fmt.Fprintf(os.Stdout, "min out (slippage %s): %s\n", slippage.String(), minOut.String())
	return nil
}
