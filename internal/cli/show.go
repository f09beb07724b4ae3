package cli

import (
	"github.com/spf13/cobra"

	"arb-explorer/internal/app"
)

var (
	showSource sourceFlags
	showView   viewFlags
	showAll    bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display ranked opportunities and summary for one snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := showView.options(cmd)
		if err != nil {
			return err
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Source: showSource.options(cmd),
			View:   view,
			All:    showAll,
		})
	},
}

func init() {
	showSource.bind(showCmd)
	showView.bind(showCmd)
	showCmd.Flags().BoolVar(&showAll, "all", false, "Print every deduplicated opportunity instead of the top page")
}
