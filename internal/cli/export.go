package cli

import (
	"github.com/spf13/cobra"

	"arb-explorer/internal/app"
)

var (
	exportSource  sourceFlags
	exportView    viewFlags
	exportCSVPath string
	exportPNGPath string
	exportStdout  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filtered opportunities as CSV and/or the chart window as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := exportView.options(cmd)
		if err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Source:  exportSource.options(cmd),
			View:    view,
			CSVPath: exportCSVPath,
			PNGPath: exportPNGPath,
			Stdout:  exportStdout,
		})
	},
}

func init() {
	exportSource.bind(exportCmd)
	exportView.bind(exportCmd)
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data (defaults to a timestamped file in export.dir)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Write CSV to standard output")
	exportCmd.MarkFlagsMutuallyExclusive("csv", "stdout")
}
