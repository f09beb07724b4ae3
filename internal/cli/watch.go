package cli

import (
	"github.com/spf13/cobra"

	"arb-explorer/internal/app"
)

var (
	watchSource sourceFlags
	watchView   viewFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh opportunities on an interval and print the ranked table",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := watchView.options(cmd)
		if err != nil {
			return err
		}
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			Source: watchSource.options(cmd),
			View:   view,
		})
	},
}

func init() {
	watchSource.bindRequest(watchCmd)
	watchView.bind(watchCmd)
}
