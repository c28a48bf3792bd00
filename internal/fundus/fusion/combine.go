// Package fusion merges per-eye extractor outputs and assembles the fixed
// 1425-value fusion vector.
package fusion

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// CombineMode defines how left and right eye sub-vectors are merged.
type CombineMode string

const (
	// CombineAverage takes the elementwise mean of both eyes; a single eye is
	// used as is. Used by the hypertension and vessel extractors.
	CombineAverage CombineMode = "average"
	// CombineConcatenate appends right after left. A missing right eye is
	// replaced by the left one so the length stays fixed.
	CombineConcatenate CombineMode = "concatenate"
	// CombineSingleEye keeps the left eye only.
	CombineSingleEye CombineMode = "single_eye"
)

// ParseCombineMode validates a mode name.
func ParseCombineMode(s string) (CombineMode, error) {
	switch m := CombineMode(s); m {
	case CombineAverage, CombineConcatenate, CombineSingleEye:
		return m, nil
	}
	return "", fmt.Errorf("unknown combine mode %q", s)
}

// Combine merges the per-eye results. right may be nil when only one eye was
// supplied. The inputs are never modified.
func Combine(mode CombineMode, left fundus.SubFeatureVector, right *fundus.SubFeatureVector) (fundus.SubFeatureVector, error) {
	if right != nil {
		if right.Source != left.Source {
			return fundus.SubFeatureVector{}, &fundus.FeatureShapeError{
				Component: string(left.Source),
				Reason:    fmt.Sprintf("cannot combine %s with %s", left.Source, right.Source),
			}
		}
		if right.Len() != left.Len() {
			return fundus.SubFeatureVector{}, &fundus.FeatureShapeError{
				Component: string(left.Source),
				Want:      left.Len(),
				Got:       right.Len(),
				Reason:    "left and right eye lengths differ",
			}
		}
	}

	switch mode {
	case CombineAverage:
		if right == nil {
			return left.Clone(), nil
		}
		out := make([]float64, left.Len())
		floats.AddTo(out, left.Values, right.Values)
		floats.Scale(0.5, out)
		return fundus.SubFeatureVector{Source: left.Source, Values: out}, nil

	case CombineConcatenate:
		second := left.Values
		if right != nil {
			second = right.Values
		}
		out := make([]float64, 0, 2*left.Len())
		out = append(out, left.Values...)
		out = append(out, second...)
		return fundus.SubFeatureVector{Source: left.Source, Values: out}, nil

	case CombineSingleEye:
		return left.Clone(), nil
	}
	return fundus.SubFeatureVector{}, fmt.Errorf("unknown combine mode %q", string(mode))
}
