package cli

import (
	"github.com/spf13/cobra"

	"arb-explorer/internal/app"
)

var (
	locateSource sourceFlags
	locateView   viewFlags
	locateAt     string
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Centre the chart window on the sample nearest a timestamp",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseInstant("--at", locateAt)
		if err != nil {
			return err
		}
		view, err := locateView.options(cmd)
		if err != nil {
			return err
		}
		return getApp().Locate(cmd.Context(), app.LocateOptions{
			Source: locateSource.options(cmd),
			At:     at,
			View:   view,
		})
	},
}

func init() {
	locateSource.bind(locateCmd)
	locateView.bind(locateCmd)
	locateCmd.Flags().StringVar(&locateAt, "at", "", "Timestamp to locate (RFC3339)")
	_ = locateCmd.MarkFlagRequired("at")
}
