package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyAlerts bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived snapshots or dispatched alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if historyAlerts {
			return getApp().Alerts(cmd.Context(), historyLimit)
		}
		return getApp().History(cmd.Context(), historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of rows to display")
	historyCmd.Flags().BoolVar(&historyAlerts, "alerts", false, "List dispatched alerts instead of snapshots")
}
