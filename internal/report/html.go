package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wind.report/internal/replay"
)

// AssetsHost is where the report page loads the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrorReport renders an HTML page for a replayed log: each model's
// prediction against the anemometer, row by row, followed by the per-model
// error summary.
func ErrorReport(w io.Writer, title string, s replay.Summary) error {
	if len(s.Models) == 0 {
		return fmt.Errorf("report: summary has no models")
	}

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = title
	page.AddCharts(
		seriesChart(title, s),
		scatterChart(s),
		metricsChart(s),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// seriesChart plots ground truth and every model's prediction per row.
// Missing values are left as gaps.
func seriesChart(title string, s replay.Summary) *charts.Line {
	x := make([]string, len(s.Data))
	truth := make([]opts.LineData, len(s.Data))
	preds := make([][]opts.LineData, len(s.Models))
	for i := range preds {
		preds[i] = make([]opts.LineData, len(s.Data))
	}

	for i, r := range s.Data {
		x[i] = strconv.Itoa(i + 1)
		truth[i] = opts.LineData{Value: "-"}
		if r.HasGroundTruth {
			truth[i] = opts.LineData{Value: r.GroundTruthMPS}
		}
		for j := range s.Models {
			preds[j][i] = opts.LineData{Value: chartValue(r.Predicted[j])}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("rows=%d", s.Rows)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Row", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s", NameLocation: "middle", NameGap: 30}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("anemometer", truth)
	for j, m := range s.Models {
		line.AddSeries(m.Model, preds[j])
	}
	return line
}

// scatterChart plots predicted against measured speed; a perfect model sits
// on the diagonal.
func scatterChart(s replay.Summary) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Predicted vs anemometer"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Anemometer (m/s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Predicted (m/s)", NameLocation: "middle", NameGap: 30}),
	)
	for j, m := range s.Models {
		pts := make([]opts.ScatterData, 0, len(s.Data))
		for _, r := range s.Data {
			v := r.Predicted[j]
			if !r.HasGroundTruth || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts = append(pts, opts.ScatterData{Value: []interface{}{r.GroundTruthMPS, v}})
		}
		scatter.AddSeries(m.Model, pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	return scatter
}

func metricsChart(s replay.Summary) *charts.Bar {
	x := []string{"MAE (m/s)", "RMSE (m/s)", "MAPE (%)"}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Error summary"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
	)
	bar.SetXAxis(x)
	for _, m := range s.Models {
		y := []opts.BarData{
			{Value: round3(m.Metrics.MAE)},
			{Value: round3(m.Metrics.RMSE)},
			{Value: round3(m.Metrics.MAPEPct)},
		}
		bar.AddSeries(fmt.Sprintf("%s (n=%d)", m.Model, m.Compared), y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	}
	return bar
}

func chartValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return v
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
