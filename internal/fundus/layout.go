package fundus

import (
	"fmt"
	"math"
)

// ModelID names one of the inference models consumed by the pipeline.
type ModelID string

const (
	// ModelHypertension is the single-eye hypertension classifier (model A).
	ModelHypertension ModelID = "htn"
	// ModelCIMT is the bilateral carotid intima-media thickness regressor (model B).
	ModelCIMT ModelID = "cimt"
	// ModelVessel is the vessel segmentation U-Net (model C).
	ModelVessel ModelID = "vessel"
	// ModelFusion is the downstream fusion classifier.
	ModelFusion ModelID = "fusion"
)

// Sub-vector layouts. These are the only source of truth for the fusion vector
// geometry; model output shapes are checked against them, never the reverse.
const (
	HTNEmbeddingDim = 1024
	HTNDim          = 1 + HTNEmbeddingDim // 1025

	CIMTEmbeddingDim = 128
	CIMTDim          = 1 + CIMTEmbeddingDim // 129

	VesselLearnedDim     = 256
	VesselDescriptorDim  = 15
	VesselDim            = VesselLearnedDim + VesselDescriptorDim // 271
	VesselDescriptorBase = VesselLearnedDim

	FusionDim = HTNDim + CIMTDim + VesselDim // 1425

	OffsetHTN    = 0
	OffsetCIMT   = OffsetHTN + HTNDim      // 1025
	OffsetVessel = OffsetCIMT + CIMTDim    // 1154
	offsetEnd    = OffsetVessel + VesselDim // 1425
)

// Compile-time guard: the offsets must tile the fusion vector exactly.
var _ = [1]struct{}{}[offsetEnd-FusionDim]

// ExpectedDim returns the documented sub-vector length for a feature-producing
// model, or 0 for models that do not contribute to the fusion vector.
func ExpectedDim(id ModelID) int {
	switch id {
	case ModelHypertension:
		return HTNDim
	case ModelCIMT:
		return CIMTDim
	case ModelVessel:
		return VesselDim
	}
	return 0
}

// SubFeatureVector is one model's contribution to the fusion vector.
type SubFeatureVector struct {
	Source ModelID
	Values []float64
}

// Len returns the number of values.
func (v SubFeatureVector) Len() int { return len(v.Values) }

// Clone returns a deep copy.
func (v SubFeatureVector) Clone() SubFeatureVector {
	out := SubFeatureVector{Source: v.Source, Values: make([]float64, len(v.Values))}
	copy(out.Values, v.Values)
	return out
}

// Validate checks the length against the documented constant for the source
// model and that every value is finite.
func (v SubFeatureVector) Validate() error {
	want := ExpectedDim(v.Source)
	if want == 0 {
		return &FeatureShapeError{Component: string(v.Source), Reason: "unknown source model"}
	}
	if len(v.Values) != want {
		return &FeatureShapeError{Component: string(v.Source), Want: want, Got: len(v.Values)}
	}
	if i := FirstNonFinite(v.Values); i >= 0 {
		return &FeatureShapeError{
			Component: string(v.Source),
			Want:      want,
			Got:       len(v.Values),
			Reason:    fmt.Sprintf("non-finite value %v at index %d", v.Values[i], i),
		}
	}
	return nil
}

// FusionFeatureVector is the assembled 1425-length vector in canonical order.
type FusionFeatureVector []float64

// Slice returns the range occupied by the given model.
func (v FusionFeatureVector) Slice(id ModelID) []float64 {
	switch id {
	case ModelHypertension:
		return v[OffsetHTN:OffsetCIMT]
	case ModelCIMT:
		return v[OffsetCIMT:OffsetVessel]
	case ModelVessel:
		return v[OffsetVessel:FusionDim]
	}
	return nil
}

// Validate checks the fixed length and that every value is finite.
func (v FusionFeatureVector) Validate() error {
	if len(v) != FusionDim {
		return &FeatureShapeError{Component: "fusion", Want: FusionDim, Got: len(v)}
	}
	if i := FirstNonFinite(v); i >= 0 {
		return &FeatureShapeError{
			Component: "fusion",
			Want:      FusionDim,
			Got:       len(v),
			Reason:    fmt.Sprintf("non-finite value %v at index %d", v[i], i),
		}
	}
	return nil
}

// FirstNonFinite returns the index of the first NaN or Inf, or -1.
func FirstNonFinite(values []float64) int {
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i
		}
	}
	return -1
}

// Sigmoid is the logistic function used to turn raw scores into probabilities.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
