package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateToken    string
	simulatePrice    float64
	simulateBaseline float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-signal",
	Short: "模拟一次价格下跌并投递告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateToken == "" {
			return errors.New("--token 必须提供")
		}
		if simulatePrice <= 0 || simulateBaseline <= 0 {
			return errors.New("--price 与 --baseline 必须大于 0")
		}

		price := decimal.NewFromFloat(simulatePrice)
		baseline := decimal.NewFromFloat(simulateBaseline)
		return getApp().SimulateSignal(cmd.Context(), simulateToken, price, baseline)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "Token 符号")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "当前价格 (USD)")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "基准价格 (USD)")
}
