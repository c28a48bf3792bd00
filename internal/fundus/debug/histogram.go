package debug

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
)

// HistogramBins is the default bin count for WriteHistogram.
const HistogramBins = 50

// Histogram builds a plot of the distribution of P with a vertical marker at
// the binarization threshold.
func Histogram(name string, pm *morphology.ProbabilityMap, tau float64, bins int) (*plot.Plot, error) {
	if pm == nil || len(pm.P) == 0 {
		return nil, fmt.Errorf("histogram %s: empty probability map", name)
	}
	if bins <= 0 {
		bins = HistogramBins
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - vessel probability", name)
	p.X.Label.Text = "P"
	p.Y.Label.Text = "Pixels"
	p.X.Min, p.X.Max = 0, 1

	h, err := plotter.NewHist(plotter.Values(pm.P), bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(h)

	var peak float64
	for _, b := range h.Bins {
		peak = max(peak, b.Weight)
	}
	marker, err := plotter.NewLine(plotter.XYs{{X: tau, Y: 0}, {X: tau, Y: peak}})
	if err != nil {
		return nil, err
	}
	marker.Color = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	marker.Width = vg.Points(1.5)
	marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(marker)
	p.Legend.Add(fmt.Sprintf("threshold %.2f", tau), marker)
	p.Legend.Top = true

	return p, nil
}

// WriteHistogram renders the histogram as a PNG.
func WriteHistogram(w io.Writer, name string, pm *morphology.ProbabilityMap, tau float64) error {
	p, err := Histogram(name, pm, tau, HistogramBins)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("histogram %s: %w", name, err)
	}
	_, err = wt.WriteTo(w)
	return err
}
