package fusion

import (
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// Assemble concatenates the three sub-vectors in canonical order. Each one is
// checked against its documented length before anything is copied, so a
// mismatched model surfaces here rather than as a shifted vector.
func Assemble(htn, cimt, vessel fundus.SubFeatureVector) (fundus.FusionFeatureVector, error) {
	parts := [...]struct {
		want fundus.ModelID
		v    fundus.SubFeatureVector
	}{
		{fundus.ModelHypertension, htn},
		{fundus.ModelCIMT, cimt},
		{fundus.ModelVessel, vessel},
	}
	for _, p := range parts {
		if p.v.Source != p.want {
			return nil, &fundus.FeatureShapeError{
				Component: string(p.want),
				Reason:    fmt.Sprintf("sub-vector tagged %q in the %s slot", p.v.Source, p.want),
			}
		}
		if err := p.v.Validate(); err != nil {
			return nil, err
		}
	}

	out := make(fundus.FusionFeatureVector, 0, fundus.FusionDim)
	for _, p := range parts {
		out = append(out, p.v.Values...)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
