package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/pipeline"
	"arb-explorer/internal/session"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Export writes the filtered working set as CSV and/or the visible chart
// window as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	snap, err := a.loadSnapshot(ctx, opts.Source)
	if err != nil {
		return err
	}

	sess := a.newSession(opts.View)
	view, err := a.prepare(sess, snap, opts.View)
	if err != nil {
		return err
	}

	wantCSV := opts.Stdout || opts.CSVPath != "" || opts.PNGPath == ""
	if wantCSV {
		if err := a.exportCSV(view, opts); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writePNG(opts.PNGPath, view); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("samples", len(view.Chart)).Msg("chart exported")
	}
	return nil
}

func (a *App) exportCSV(view session.View, opts ExportOptions) error {
	comma, err := a.Config.Export.Comma()
	if err != nil {
		return err
	}
	exportOpts := pipeline.ExportOptions{Comma: comma}

	if len(view.Filtered) == 0 {
		a.Logger.Warn().Msg("no data to export for the current filters")
		return pipeline.ErrNothingToExport
	}

	if opts.Stdout {
		return pipeline.Write(a.Out, view.Filtered, exportOpts)
	}

	path := opts.CSVPath
	if path == "" {
		path = filepath.Join(a.Config.Export.Dir, pipeline.ExportFilename(time.Now()))
	}
	if err := writeCSVFile(path, view.Filtered, exportOpts, a.Config.Export.BOM); err != nil {
		return err
	}
	a.Logger.Info().Str("path", path).Int("rows", len(view.Filtered)).Msg("opportunities exported")
	return nil
}

func writeCSVFile(path string, records []opportunity.Record, opts pipeline.ExportOptions, bom bool) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = file
	if bom {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}
	return pipeline.Write(w, records, opts)
}

func (a *App) writePNG(path string, v session.View) error {
	if len(v.Chart) < 2 {
		return errors.New("need at least two chart samples to render a PNG")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(v.Chart))
	left := make([]float64, len(v.Chart))
	right := make([]float64, len(v.Chart))
	diff := make([]float64, len(v.Chart))
	for i, s := range v.Chart {
		x[i] = s.Timestamp
		left[i] = s.PriceLeft
		right[i] = s.PriceRight
		diff[i] = s.PriceDiff()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  a.Config.Export.PNGWidth,
		Height: a.Config.Export.PNGHeight,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Price difference",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Bin",
				XValues: x,
				YValues: left,
			},
			chart.TimeSeries{
				Name:    "Uni",
				XValues: x,
				YValues: right,
			},
			chart.TimeSeries{
				Name:    "Difference",
				XValues: x,
				YValues: diff,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	if v.HasDomain {
		graph.YAxis.Range = axisRange(v.PriceDomain.Min, v.PriceDomain.Max)
		graph.YAxisSecondary.Range = axisRange(v.SpreadDomain.Min, v.SpreadDomain.Max)
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// axisRange widens a flat domain so the renderer has a non-zero span.
func axisRange(lo, hi float64) *chart.ContinuousRange {
	if hi <= lo {
		lo, hi = lo-1, hi+1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
