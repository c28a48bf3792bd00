package debug

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
)

// EyeSummary is one eye's entry in the HTML report.
type EyeSummary struct {
	Eye         fundus.Eye
	Descriptors morphology.Descriptors
	Diagnostics *Diagnostics
}

// WriteReport renders an HTML page with one descriptor bar chart across all
// eyes and, when diagnostics are present, a threshold coverage chart.
func WriteReport(w io.Writer, title string, eyes []EyeSummary) error {
	if len(eyes) == 0 {
		return fmt.Errorf("report %s: no eyes", title)
	}

	desc := charts.NewBar()
	desc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Vessel descriptors", Subtitle: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 40, Interval: "0"}}),
	)
	desc.SetXAxis(morphology.Names())
	for _, e := range eyes {
		vals := e.Descriptors.Vector()
		data := make([]opts.BarData, len(vals))
		for i, v := range vals {
			data[i] = opts.BarData{Value: v}
		}
		desc.AddSeries(string(e.Eye), data)
	}

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(desc)

	if cov := coverageChart(eyes); cov != nil {
		page.AddCharts(cov)
	}
	return page.Render(w)
}

func coverageChart(eyes []EyeSummary) *charts.Bar {
	var found bool
	for _, e := range eyes {
		found = found || e.Diagnostics != nil
	}
	if !found {
		return nil
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Probability coverage", Subtitle: "% of pixels"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"nonzero", "> 0.1", "> 0.3", "> 0.5"})
	for _, e := range eyes {
		d := e.Diagnostics
		if d == nil {
			continue
		}
		bar.AddSeries(string(e.Eye), []opts.BarData{
			{Value: d.PercentNonzero},
			{Value: d.PercentAbove01},
			{Value: d.PercentAbove03},
			{Value: d.PercentAbove05},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	}
	return bar
}
