package registry

import (
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// TensorSpec declares one named model input or output. A dimension of -1
// accepts any size (dynamic batch axes).
type TensorSpec struct {
	Name  string
	Shape []int64
}

// Matches reports whether dims are compatible with the declared shape.
func (t TensorSpec) Matches(dims []int64) bool {
	if len(dims) != len(t.Shape) {
		return false
	}
	for i, want := range t.Shape {
		got := dims[i]
		if want == -1 || got == -1 {
			continue
		}
		if want != got {
			return false
		}
	}
	return true
}

// Architecture is the declared I/O contract of a model.
type Architecture struct {
	Model   fundus.ModelID
	Inputs  []TensorSpec
	Outputs []TensorSpec
}

// InputNames lists the declared input names in order.
func (a Architecture) InputNames() []string { return names(a.Inputs) }

// OutputNames lists the declared output names in order.
func (a Architecture) OutputNames() []string { return names(a.Outputs) }

func names(specs []TensorSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

// CheckOutputs verifies that tensors returned by a model have the declared
// count and element volume.
func (a Architecture) CheckOutputs(outs []*fundus.Tensor) error {
	if len(outs) != len(a.Outputs) {
		return &fundus.FeatureShapeError{
			Component: string(a.Model),
			Reason:    fmt.Sprintf("model returned %d outputs, want %d", len(outs), len(a.Outputs)),
		}
	}
	for i, spec := range a.Outputs {
		want := fundus.Volume(spec.Shape)
		if want < 0 {
			continue
		}
		if got := int64(outs[i].Len()); got != want {
			return &fundus.FeatureShapeError{
				Component: string(a.Model) + "." + spec.Name,
				Want:      int(want),
				Got:       int(got),
			}
		}
	}
	return nil
}

// Architectures returns the declared contracts for all four models.
func Architectures() map[fundus.ModelID]Architecture {
	return map[fundus.ModelID]Architecture{
		fundus.ModelHypertension: {
			Model:  fundus.ModelHypertension,
			Inputs: []TensorSpec{{Name: "image", Shape: []int64{1, 3, 224, 224}}},
			Outputs: []TensorSpec{
				{Name: "logit", Shape: []int64{1, 1}},
				{Name: "embedding", Shape: []int64{1, fundus.HTNEmbeddingDim}},
			},
		},
		fundus.ModelCIMT: {
			Model: fundus.ModelCIMT,
			Inputs: []TensorSpec{
				{Name: "left", Shape: []int64{1, 3, 512, 512}},
				{Name: "right", Shape: []int64{1, 3, 512, 512}},
				{Name: "clinical", Shape: []int64{1, 3}},
			},
			Outputs: []TensorSpec{
				{Name: "prediction", Shape: []int64{1, 1}},
				{Name: "embedding", Shape: []int64{1, fundus.CIMTEmbeddingDim}},
			},
		},
		fundus.ModelVessel: {
			Model:  fundus.ModelVessel,
			Inputs: []TensorSpec{{Name: "image", Shape: []int64{1, 3, 512, 512}}},
			Outputs: []TensorSpec{
				{Name: "mask_logits", Shape: []int64{1, 1, 512, 512}},
				{Name: "features", Shape: []int64{1, fundus.VesselLearnedDim}},
			},
		},
		fundus.ModelFusion: {
			Model:   fundus.ModelFusion,
			Inputs:  []TensorSpec{{Name: "features", Shape: []int64{1, fundus.FusionDim}}},
			Outputs: []TensorSpec{{Name: "logit", Shape: []int64{1, 1}}},
		},
	}
}
