// Package report renders a static HTML report for one backtest session:
// every run's equity curve with the cross-run mean emphasized, the mean
// curve's drawdown, and tables for the aggregate summary and instrument
// usage.
package report

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"kabu/internal/domain"
)

const (
	colorRun  = "#7f9bb5"
	colorMean = "#d95350"
	colorDown = "#5470c6"

	chartWidthPx     = 1400
	equityHeightPx   = 520
	drawdownHeightPx = 300
)

// RunCurve is one run's equal-weight portfolio equity curve.
type RunCurve struct {
	RunID  int
	Points []domain.EquityPoint
}

// Data is everything the report shows for one session.
type Data struct {
	Session domain.Session
	Runs    []domain.RunMetrics
	Summary []domain.MetricSummary
	Usage   []domain.UsageCount
	Curves  []RunCurve
}

// Renderer writes session reports into a directory.
type Renderer struct {
	dir string
	log *slog.Logger
}

// NewRenderer creates a Renderer writing into dir. The directory is
// created on first render.
func NewRenderer(dir string) *Renderer {
	return &Renderer{
		dir: dir,
		log: slog.Default().With("component", "report"),
	}
}

// Render writes the session report and returns its path. The file is
// named <strategy>-<session>.html.
func (r *Renderer) Render(data *Data) (string, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	axis, aligned := alignCurves(data.Curves)
	if len(axis) > 0 {
		mean := meanSeries(aligned, len(axis))
		page.AddCharts(
			equityChart(data.Session, axis, data.Curves, aligned, mean),
			drawdownChart(axis, drawdownSeries(mean)),
		)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", fmt.Errorf("rendering charts: %w", err)
	}
	out := bytes.Replace(buf.Bytes(), []byte("</body>"), append(buildTables(data), []byte("</body>")...), 1)

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.html", data.Session.Strategy, data.Session.ID))
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	r.log.Info("report written", "path", path, "runs", len(data.Curves))
	return path, nil
}

// alignCurves maps every run curve onto the union of all run dates so the
// series share one category axis. Dates are compared as yyyy-mm-dd strings.
func alignCurves(curves []RunCurve) ([]string, [][]float64) {
	dateSet := make(map[string]struct{})
	for _, c := range curves {
		for _, p := range c.Points {
			dateSet[p.Date.Format("2006-01-02")] = struct{}{}
		}
	}
	if len(dateSet) == 0 {
		return nil, nil
	}
	axis := make([]string, 0, len(dateSet))
	for d := range dateSet {
		axis = append(axis, d)
	}
	sort.Strings(axis)

	aligned := make([][]float64, len(curves))
	for i, c := range curves {
		aligned[i] = sampleCurve(axis, c.Points)
	}
	return axis, aligned
}

// sampleCurve aligns one curve to the axis, carrying the last equity
// forward across dates the curve does not cover. Before the first point
// the curve reports its starting equity of 1.
func sampleCurve(axis []string, pts []domain.EquityPoint) []float64 {
	out := make([]float64, len(axis))
	last := 1.0
	j := 0
	for i, d := range axis {
		for j < len(pts) && pts[j].Date.Format("2006-01-02") <= d {
			last = pts[j].Equity
			j++
		}
		out[i] = last
	}
	return out
}

func meanSeries(aligned [][]float64, n int) []float64 {
	mean := make([]float64, n)
	if len(aligned) == 0 {
		return mean
	}
	for _, series := range aligned {
		for i, v := range series {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(aligned))
	}
	return mean
}

// drawdownSeries is the running distance below the series' peak, zero at
// new highs and negative inside a drawdown.
func drawdownSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	peak := 0.0
	for i, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = v/peak - 1
		}
	}
	return out
}

func equityChart(sess domain.Session, axis []string, curves []RunCurve, aligned [][]float64, mean []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", equityHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s equity curves (%d runs)", sess.Strategy, len(curves)),
			Subtitle: fmt.Sprintf("session %s | base seed %d | sample %d | %s to %s",
				sess.ID, sess.BaseSeed, sess.SampleSize,
				sess.WindowStart.Format("2006-01-02"), sess.WindowEnd.Format("2006-01-02")),
			Left: "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(axis)
	for i, c := range curves {
		line.AddSeries(fmt.Sprintf("run %d", c.RunID), lineData(aligned[i]),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorRun, Width: 1, Opacity: opts.Float(0.3)}),
		)
	}
	line.AddSeries("mean", lineData(mean),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorMean, Width: 3}),
	)
	return line
}

func drawdownChart(axis []string, dd []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", drawdownHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: "mean curve drawdown", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(axis)
	line.AddSeries("drawdown", lineData(dd),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDown, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)
	return line
}

func lineData(series []float64) []opts.LineData {
	data := make([]opts.LineData, len(series))
	for i, v := range series {
		data[i] = opts.LineData{Value: round(v, 4)}
	}
	return data
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

// buildTables renders the non-chart sections. go-echarts has no table
// component, so the block is spliced into the page before </body>.
func buildTables(data *Data) []byte {
	var b strings.Builder
	b.WriteString(`<style>
.report { font-family: sans-serif; margin: 24px; max-width: 1400px; }
.report table { border-collapse: collapse; margin: 12px 0 28px; }
.report th, .report td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
.report th:first-child, .report td:first-child { text-align: left; }
.report h2 { margin-bottom: 4px; }
.report .warn { color: #b33; }
</style>
<div class="report">
`)

	b.WriteString("<h2>Aggregate summary</h2>\n")
	b.WriteString("<table>\n<tr><th>metric</th><th>runs</th><th>mean</th><th>stddev</th><th>ci low</th><th>ci high</th><th>min</th><th>q25</th><th>median</th><th>q75</th><th>max</th></tr>\n")
	for _, row := range data.Summary {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td><td>%.4f</td></tr>\n",
			html.EscapeString(row.Metric), row.Runs, row.Mean, row.Stddev,
			row.CILow, row.CIHigh, row.Min, row.Q25, row.Median, row.Q75, row.Max)
	}
	b.WriteString("</table>\n")

	if len(data.Usage) > 0 {
		b.WriteString("<h2>Instrument usage</h2>\n")
		b.WriteString("<table>\n<tr><th>instrument</th><th>sampled</th><th>traded</th></tr>\n")
		for _, u := range data.Usage {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%d</td></tr>\n",
				html.EscapeString(u.Symbol), u.Sampled, u.Traded)
		}
		b.WriteString("</table>\n")
	}

	if warnings := runWarnings(data.Runs); len(warnings) > 0 {
		b.WriteString("<h2 class=\"warn\">Degraded runs</h2>\n<ul class=\"warn\">\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(w))
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("</div>\n")
	return []byte(b.String())
}

func runWarnings(runs []domain.RunMetrics) []string {
	var out []string
	for _, rm := range runs {
		switch {
		case rm.Instruments == 0:
			out = append(out, fmt.Sprintf("run %d: no instruments produced results; excluded from aggregates", rm.RunID))
		case rm.Failures > 0:
			out = append(out, fmt.Sprintf("run %d: %d of %d instruments failed to fetch", rm.RunID, rm.Failures, rm.Instruments+rm.Failures))
		}
	}
	return out
}
