package morphology

import (
	"fmt"
	"math"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// DefaultThreshold is the binarisation cut-off τ. The segmentation network is
// under-confident on vessel pixels; 0.5 loses most of them.
const DefaultThreshold = 0.3

// ProbabilityMap is a per-pixel vessel probability in [0,1], row-major.
type ProbabilityMap struct {
	Width  int
	Height int
	P      []float64
}

// NewProbabilityMap validates geometry and range. The slice is not copied.
func NewProbabilityMap(width, height int, p []float64) (*ProbabilityMap, error) {
	if width <= 0 || height <= 0 {
		return nil, &fundus.InvalidInputError{Field: "probability map", Reason: fmt.Sprintf("zero-area map %dx%d", width, height)}
	}
	if len(p) != width*height {
		return nil, &fundus.InvalidInputError{Field: "probability map", Reason: fmt.Sprintf("%d values for %dx%d", len(p), width, height)}
	}
	for i, v := range p {
		if !(v >= 0 && v <= 1) {
			return nil, &fundus.InvalidInputError{Field: "probability map", Reason: fmt.Sprintf("value %v at %d outside [0,1]", v, i)}
		}
	}
	return &ProbabilityMap{Width: width, Height: height, P: p}, nil
}

// FromLogits applies an elementwise sigmoid to raw segmentation scores. A
// non-finite score is a model fault, not an input fault.
func FromLogits(width, height int, logits []float32) (*ProbabilityMap, error) {
	if len(logits) != width*height {
		return nil, &fundus.FeatureShapeError{Component: "vessel mask", Want: width * height, Got: len(logits)}
	}
	p := make([]float64, len(logits))
	for i, l := range logits {
		x := float64(l)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &fundus.FeatureShapeError{Component: "vessel mask logits", Reason: fmt.Sprintf("value %v at %d", x, i)}
		}
		p[i] = fundus.Sigmoid(x)
	}
	return NewProbabilityMap(width, height, p)
}

// Uniform returns a map with every pixel set to v.
func Uniform(width, height int, v float64) *ProbabilityMap {
	p := make([]float64, width*height)
	for i := range p {
		p[i] = v
	}
	return &ProbabilityMap{Width: width, Height: height, P: p}
}

// At returns the probability at (x, y).
func (pm *ProbabilityMap) At(x, y int) float64 { return pm.P[y*pm.Width+x] }

// Binarize returns the mask of pixels strictly above tau.
func Binarize(pm *ProbabilityMap, tau float64) *Mask {
	m := NewMask(pm.Width, pm.Height)
	for i, v := range pm.P {
		m.Pix[i] = v > tau
	}
	return m
}
