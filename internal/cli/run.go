package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gmx-trade-agent/internal/alerts"
	"gmx-trade-agent/internal/app"
)

var (
	runAlerts []string
	runOwner  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the price alert monitor",
	Long: `Run the alert monitor loop. Alerts registered with --alert use the
form TOKEN:THRESHOLD[:SLIPPAGE], e.g. ETH:0.05 or BTC:0.01:0.03. The
threshold is the price-drop fraction that fires the alert.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]alerts.Spec, 0, len(runAlerts))
		for _, raw := range runAlerts {
			spec, err := parseAlertFlag(raw, runOwner)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		return getApp().Run(cmd.Context(), app.RunOptions{Alerts: specs})
	},
}

func parseAlertFlag(raw, owner string) (alerts.Spec, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return alerts.Spec{}, fmt.Errorf("invalid --alert %q; want TOKEN:THRESHOLD[:SLIPPAGE]", raw)
	}

	threshold, err := decimal.NewFromString(parts[1])
	if err != nil {
		return alerts.Spec{}, fmt.Errorf("invalid threshold in --alert %q: %w", raw, err)
	}

	spec := alerts.Spec{
		Token:     parts[0],
		Threshold: threshold,
		OwnerID:   owner,
	}

	if len(parts) == 3 {
		slippage, err := decimal.NewFromString(parts[2])
		if err != nil {
			return alerts.Spec{}, fmt.Errorf("invalid slippage in --alert %q: %w", raw, err)
		}
		spec.Slippage = &slippage
	}

	return spec, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runAlerts, "alert", nil, "Alert to register at startup (TOKEN:THRESHOLD[:SLIPPAGE]); repeatable")
	runCmd.Flags().StringVar(&runOwner, "owner", "cli", "Owner id attached to registered alerts")
}
