package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gmx-trade-agent/internal/app"
)

var (
	quoteTokenIn  string
	quoteTokenOut string
	quoteAmount   float64
	quoteSlippage float64
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print expected and minimum output for a swap",
	RunE: func(cmd *cobra.Command, args []string) error {
		if quoteTokenIn == "" || quoteTokenOut == "" {
			return fmt.Errorf("--in and --out must both be provided")
		}
		if quoteAmount <= 0 {
			return fmt.Errorf("--amount must be greater than zero")
		}

		opts := app.QuoteOptions{
			TokenIn:  quoteTokenIn,
			TokenOut: quoteTokenOut,
			AmountIn: decimal.NewFromFloat(quoteAmount),
		}
		if cmd.Flags().Changed("slippage") {
			slippage := decimal.NewFromFloat(quoteSlippage)
			opts.Slippage = &slippage
		}

		return getApp().Quote(cmd.Context(), opts)
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteTokenIn, "in", "", "Token symbol to sell")
	quoteCmd.Flags().StringVar(&quoteTokenOut, "out", "", "Token symbol to buy")
	quoteCmd.Flags().Float64Var(&quoteAmount, "amount", 0, "Amount of the sell token")
	quoteCmd.Flags().Float64Var(&quoteSlippage, "slippage", 0.02, "Slippage fraction override")
}
