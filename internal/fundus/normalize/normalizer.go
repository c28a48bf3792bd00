package normalize

import (
	"github.com/banshee-data/fundus.report/internal/fundus"
)

// Epsilon keeps constant training dimensions from dividing by zero.
const Epsilon = 1e-8

// Normalizer applies (x-mean)/(std+Epsilon). It holds a private copy of the
// stats and is safe for concurrent use.
type Normalizer struct {
	stats *Stats
}

// New validates and copies stats.
func New(stats *Stats) (*Normalizer, error) {
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{stats: stats.Clone()}, nil
}

// Stats returns a copy of the loaded statistics.
func (n *Normalizer) Stats() *Stats { return n.stats.Clone() }

// Normalize returns a new standardised vector. A non-finite result is a
// FeatureShapeError.
func (n *Normalizer) Normalize(v fundus.FusionFeatureVector) (fundus.FusionFeatureVector, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	out := make(fundus.FusionFeatureVector, len(v))
	for i, x := range v {
		out[i] = (x - n.stats.Mean[i]) / (n.stats.Std[i] + Epsilon)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Denormalize inverts Normalize.
func (n *Normalizer) Denormalize(v fundus.FusionFeatureVector) (fundus.FusionFeatureVector, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	out := make(fundus.FusionFeatureVector, len(v))
	for i, z := range v {
		out[i] = z*(n.stats.Std[i]+Epsilon) + n.stats.Mean[i]
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
