package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gmx-trade-agent/internal/app"
)

var (
	parseText    string
	parseOwner   string
	parseExecute bool
	parseWatch   bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a natural-language message into a trade or alert intent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseText == "" {
			return fmt.Errorf("--text must be provided")
		}
		if parseExecute && parseWatch {
			return fmt.Errorf("--execute and --watch are mutually exclusive")
		}

		opts := app.ParseOptions{
			Text:    parseText,
			OwnerID: parseOwner,
			Execute: parseExecute,
			Watch:   parseWatch,
		}
		return getApp().Parse(cmd.Context(), opts)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseText, "text", "", "Message to parse")
	parseCmd.Flags().StringVar(&parseOwner, "owner", "cli", "Owner id attached to a registered alert")
	parseCmd.Flags().BoolVar(&parseExecute, "execute", false, "Execute a parsed trade intent on chain")
	parseCmd.Flags().BoolVar(&parseWatch, "watch", false, "Register a parsed alert intent and start the monitor")
}
