package dashboard

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/ethpandaops/brickdash/internal/series"
)

const (
	countTitle  = "Live Bricks Cut"
	rateTitle   = "Extrapolated Bricks Per Hour"
	bucketTitle = "Bricks/min in 5 Minute Intervals"

	// minSlots keeps the x axis from collapsing for the first few samples.
	minSlots = 10
)

// View is the data behind one render.
type View struct {
	Snapshot series.Snapshot
	Status   string
}

func buildPage(v View) *components.Page {
	page := components.NewPage()
	page.PageTitle = "BrickDash"
	page.AddCharts(
		countChart(v),
		rateChart(v.Snapshot),
		bucketChart(v.Snapshot),
	)

	return page
}

// renderHTML renders the page and injects a meta refresh so an open
// browser tab follows the file.
func renderHTML(v View, refreshSeconds int) ([]byte, error) {
	var buf bytes.Buffer

	if err := buildPage(v).Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}

	out := buf.Bytes()

	if refreshSeconds > 0 {
		meta := fmt.Sprintf(
			"<head>\n    <meta http-equiv=\"refresh\" content=\"%d\">",
			refreshSeconds,
		)
		out = bytes.Replace(out, []byte("<head>"), []byte(meta), 1)
	}

	return out, nil
}

func countChart(v View) *charts.Line {
	adjusted := v.Snapshot.Adjusted()
	labels := padLabels(v.Snapshot.Timestamps())

	data := make([]opts.LineData, 0, len(adjusted))
	for _, a := range adjusted {
		data = append(data, opts.LineData{Value: a})
	}

	yAxis := opts.YAxis{Name: "Bricks", Type: "value"}
	if lo, hi, ok := bounds(adjusted); ok {
		yAxis.Min = lo - 1
		yAxis.Max = hi + 1
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    countTitle,
			Subtitle: v.Status,
		}),
		charts.WithYAxisOpts(yAxis),
	)
	line.SetXAxis(labels).AddSeries("Bricks", data)

	return line
}

func rateChart(snap series.Snapshot) *charts.Line {
	labels := padLabels(snap.Timestamps())

	data := make([]opts.LineData, 0, len(snap.Rates))
	peak := 0.0

	for _, r := range snap.Rates {
		data = append(data, opts.LineData{Value: r})
		peak = math.Max(peak, r)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: rateTitle}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Bricks/hour",
			Type: "value",
			Min:  0,
			Max:  peak + 10,
		}),
	)
	line.SetXAxis(labels).AddSeries("Bricks/hour", data)

	return line
}

func bucketChart(snap series.Snapshot) *charts.Bar {
	labels := make([]string, 0, len(snap.Buckets))
	data := make([]opts.BarData, 0, len(snap.Buckets))

	for _, b := range snap.Buckets {
		labels = append(labels, b.Label)
		data = append(data, opts.BarData{Value: b.BricksPerMinute()})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: bucketTitle}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Time Blocks",
			AxisLabel: &opts.AxisLabel{Rotate: 30},
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Avg Bricks/min", Type: "value"}),
	)
	bar.SetXAxis(labels).AddSeries("Avg Bricks/min", data)

	return bar
}

// padLabels extends labels with blanks up to minSlots.
func padLabels(labels []string) []string {
	for len(labels) < minSlots {
		labels = append(labels, "")
	}

	return labels
}

func bounds(values []int64) (int64, int64, bool) {
	if len(values) == 0 {
		return 0, 0, false
	}

	lo, hi := values[0], values[0]

	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	return lo, hi, true
}
