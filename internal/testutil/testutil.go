// Package testutil provides synthetic fundus fixtures for tests.
//
// The fixtures are deterministic so that pipeline properties (idempotence,
// eye-swap symmetry, threshold monotonicity) can be asserted exactly.
package testutil

import (
	"math"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
)

// Fundus palette. Vessels are dark with a low green channel; the retina
// background is orange with a bright green channel.
var (
	BackgroundRGB = [3]uint8{205, 160, 70}
	VesselRGB     = [3]uint8{110, 20, 15}
)

// FundusOptions shape a synthetic fundus photograph.
type FundusOptions struct {
	Width   int
	Height  int
	Vessels int     // number of sinusoidal vessels
	Phase   float64 // shifts every vessel; use different phases per eye
	Thin    bool    // draw vessels 3 px wide instead of 5
}

// SyntheticFundus draws a deterministic image with Vessels wavy horizontal
// vessels and one vertical trunk.
func SyntheticFundus(opts FundusOptions) *fundus.Image {
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 256
	}
	if h == 0 {
		h = 256
	}
	half := 2
	if opts.Thin {
		half = 1
	}
	vessel := make([]bool, w*h)
	mark := func(x, y int) {
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				px, py := x+dx, y+dy
				if px >= 0 && py >= 0 && px < w && py < h {
					vessel[py*w+px] = true
				}
			}
		}
	}
	for k := 0; k < opts.Vessels; k++ {
		y0 := float64(h) * float64(k+1) / float64(opts.Vessels+1)
		amp := float64(h) / float64(4*(opts.Vessels+1))
		for x := 0; x < w; x++ {
			y := y0 + amp*math.Sin(float64(x)/float64(w)*2*math.Pi*float64(k+1)+opts.Phase)
			mark(x, int(math.Round(y)))
		}
	}
	trunk := int(float64(w) * (0.5 + 0.1*math.Sin(opts.Phase)))
	for y := 0; y < h; y++ {
		mark(trunk, y)
	}

	pix := make([]uint8, 0, w*h*3)
	for _, v := range vessel {
		c := BackgroundRGB
		if v {
			c = VesselRGB
		}
		pix = append(pix, c[0], c[1], c[2])
	}
	img, err := fundus.NewImage(w, h, 3, pix)
	if err != nil {
		panic(err)
	}
	return img
}

// UniformImage returns a w x h image filled with one colour.
func UniformImage(w, h int, r, g, b uint8) *fundus.Image {
	pix := make([]uint8, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	img, err := fundus.NewImage(w, h, 3, pix)
	if err != nil {
		panic(err)
	}
	return img
}

// RadialProbabilityMap returns a smooth map peaking at 1 in the centre and
// falling to 0 at the corners, with bright bands every period pixels.
func RadialProbabilityMap(w, h, period int) *morphology.ProbabilityMap {
	p := make([]float64, w*h)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	maxR := math.Hypot(cx, cy)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 1 - math.Hypot(float64(x)-cx, float64(y)-cy)/maxR
			if period > 0 && (x%period < 2 || y%period < 2) {
				v = math.Min(1, v+0.3)
			}
			p[y*w+x] = math.Max(0, v)
		}
	}
	return &morphology.ProbabilityMap{Width: w, Height: h, P: p}
}
