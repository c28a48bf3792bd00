// Package debug renders diagnostics for vessel probability maps: summary
// statistics with issue hints, a histogram PNG, contrast-stretched and
// binary mask PNGs, and an HTML descriptor report.
//
// Nothing here feeds the feature vector.
package debug

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
)

// Diagnostics summarises a probability map.
type Diagnostics struct {
	Name   string
	Width  int
	Height int

	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Std    float64

	// Percentages of all pixels, 0..100.
	PercentNonzero float64
	PercentAbove01 float64
	PercentAbove03 float64
	PercentAbove05 float64

	Issues []Issue
}

// Issue is one suspicious property with suggested checks.
type Issue struct {
	Summary string
	Hints   []string
}

// Healthy reports whether no issue was raised.
func (d *Diagnostics) Healthy() bool { return len(d.Issues) == 0 }

// AnalyzeMask computes Diagnostics for pm. Std is the population standard
// deviation; Median averages the two middle values for even sizes.
func AnalyzeMask(name string, pm *morphology.ProbabilityMap) (*Diagnostics, error) {
	if pm == nil || len(pm.P) == 0 {
		return nil, fmt.Errorf("analyze %s: empty probability map", name)
	}
	d := &Diagnostics{Name: name, Width: pm.Width, Height: pm.Height}

	d.Mean, d.Std = stat.PopMeanStdDev(pm.P, nil)

	sorted := slices.Clone(pm.P)
	slices.Sort(sorted)
	d.Min, d.Max = sorted[0], sorted[len(sorted)-1]
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		d.Median = sorted[mid]
	} else {
		d.Median = (sorted[mid-1] + sorted[mid]) / 2
	}

	var nonzero, a01, a03, a05 int
	for _, v := range pm.P {
		if v != 0 {
			nonzero++
		}
		if v > 0.1 {
			a01++
		}
		if v > 0.3 {
			a03++
		}
		if v > 0.5 {
			a05++
		}
	}
	n := float64(len(pm.P))
	d.PercentNonzero = 100 * float64(nonzero) / n
	d.PercentAbove01 = 100 * float64(a01) / n
	d.PercentAbove03 = 100 * float64(a03) / n
	d.PercentAbove05 = 100 * float64(a05) / n

	d.Issues = diagnose(d)
	return d, nil
}

func diagnose(d *Diagnostics) []Issue {
	var issues []Issue
	if d.Max < 0.1 {
		issues = append(issues, Issue{
			Summary: "max value < 0.1: model outputs very low probabilities",
			Hints:   []string{"check the model weights loaded correctly", "verify preprocessing matches training"},
		})
	}
	if d.PercentAbove05 < 0.1 {
		issues = append(issues, Issue{
			Summary: "<0.1% of pixels above 0.5: almost no vessels detected",
			Hints:   []string{"consider lowering the threshold to 0.3 or 0.1", "check the image preprocessing"},
		})
	}
	if d.Mean < 0.05 {
		issues = append(issues, Issue{
			Summary: "very low mean: mask is mostly background",
			Hints:   []string{"possibly an untrained model or wrong input preprocessing"},
		})
	}
	if d.Mean > 0.95 {
		issues = append(issues, Issue{
			Summary: "very high mean: mask is mostly vessel",
			Hints:   []string{"model output may be inverted or broken"},
		})
	}
	if d.Std < 0.01 {
		issues = append(issues, Issue{
			Summary: "very low std dev: no variation in mask",
			Hints:   []string{"model outputs constant values (untrained)"},
		})
	}
	return issues
}

// String renders the diagnostics as a plain-text block.
func (d *Diagnostics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mask analysis: %s (%dx%d)\n", d.Name, d.Width, d.Height)
	fmt.Fprintf(&b, "  min     %.6f\n", d.Min)
	fmt.Fprintf(&b, "  max     %.6f\n", d.Max)
	fmt.Fprintf(&b, "  mean    %.6f\n", d.Mean)
	fmt.Fprintf(&b, "  median  %.6f\n", d.Median)
	fmt.Fprintf(&b, "  std     %.6f\n", d.Std)
	fmt.Fprintf(&b, "  nonzero %.2f%%\n", d.PercentNonzero)
	fmt.Fprintf(&b, "  >0.5    %.2f%%\n", d.PercentAbove05)
	fmt.Fprintf(&b, "  >0.3    %.2f%%\n", d.PercentAbove03)
	fmt.Fprintf(&b, "  >0.1    %.2f%%\n", d.PercentAbove01)
	if d.Healthy() {
		b.WriteString("no issues found\n")
		return b.String()
	}
	for _, is := range d.Issues {
		fmt.Fprintf(&b, "issue: %s\n", is.Summary)
		for _, h := range is.Hints {
			fmt.Fprintf(&b, "  -> %s\n", h)
		}
	}
	return b.String()
}
