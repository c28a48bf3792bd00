// Package extract runs the three feature models and turns their outputs into
// documented sub-vectors.
//
// Every extractor checks the model's raw outputs against the declared
// architecture and its own sub-vector against the layout constants, so a
// model/weight mismatch fails here with a FeatureShapeError and never reaches
// assembly.
package extract

import (
	"context"
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/fusion"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
)

// Input is one request's worth of extractor input. Left is required.
type Input struct {
	Left       *fundus.Image
	Right      *fundus.Image
	Covariates fundus.ClinicalCovariates
}

// Validate rejects a missing left eye and malformed images.
func (in Input) Validate() error {
	if in.Left == nil {
		return &fundus.InvalidInputError{Field: "left image", Reason: "required"}
	}
	if err := in.Left.Validate(); err != nil {
		return fmt.Errorf("left eye: %w", err)
	}
	if in.Right != nil {
		if err := in.Right.Validate(); err != nil {
			return fmt.Errorf("right eye: %w", err)
		}
	}
	return nil
}

// Eyes returns the supplied images paired with their side, left first.
func (in Input) Eyes() []EyeImage {
	eyes := []EyeImage{{Eye: fundus.EyeLeft, Image: in.Left}}
	if in.Right != nil {
		eyes = append(eyes, EyeImage{Eye: fundus.EyeRight, Image: in.Right})
	}
	return eyes
}

// EyeImage tags an image with its side.
type EyeImage struct {
	Eye   fundus.Eye
	Image *fundus.Image
}

// EyeReport carries per-eye intermediate results worth surfacing to callers.
// It is request scoped.
type EyeReport struct {
	Eye         fundus.Eye
	Probability *morphology.ProbabilityMap
	Analysis    *morphology.Analysis
}

// Output is an extractor's combined sub-vector plus diagnostics.
type Output struct {
	Features fundus.SubFeatureVector
	Eyes     []EyeReport
	// Warnings are non-fatal conditions such as *fundus.DegenerateMaskWarning.
	Warnings []error
}

// Extractor produces one model's sub-vector for a request.
type Extractor interface {
	Model() fundus.ModelID
	Mode() fusion.CombineMode
	Extract(ctx context.Context, in Input) (*Output, error)
}

// runner resolves one model's handle and declared architecture.
type runner struct {
	reg  *registry.Registry
	id   fundus.ModelID
	arch registry.Architecture
}

func newRunner(reg *registry.Registry, id fundus.ModelID) (runner, error) {
	if reg == nil {
		return runner{}, fmt.Errorf("%s extractor: nil registry", id)
	}
	spec, ok := reg.Spec(id)
	if !ok {
		return runner{}, fmt.Errorf("%s extractor: model not registered", id)
	}
	return runner{reg: reg, id: id, arch: spec.Architecture}, nil
}

// infer runs the model and checks output count and volumes.
func (r runner) infer(ctx context.Context, inputs ...*fundus.Tensor) ([]*fundus.Tensor, error) {
	m, err := r.reg.Get(ctx, r.id)
	if err != nil {
		return nil, err
	}
	outs, err := m.Infer(ctx, inputs...)
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", r.id, err)
	}
	if err := r.arch.CheckOutputs(outs); err != nil {
		return nil, err
	}
	return outs, nil
}

// subVector builds and validates a sub-vector from a leading scalar and a
// tail of float32 values.
func subVector(id fundus.ModelID, head float64, tails ...[]float32) (fundus.SubFeatureVector, error) {
	n := 1
	for _, t := range tails {
		n += len(t)
	}
	values := make([]float64, 0, n)
	values = append(values, head)
	for _, t := range tails {
		for _, x := range t {
			values = append(values, float64(x))
		}
	}
	v := fundus.SubFeatureVector{Source: id, Values: values}
	if err := v.Validate(); err != nil {
		return fundus.SubFeatureVector{}, err
	}
	return v, nil
}

// combineEyes merges one or two per-eye vectors with the extractor's mode.
func combineEyes(mode fusion.CombineMode, per []fundus.SubFeatureVector) (fundus.SubFeatureVector, error) {
	var right *fundus.SubFeatureVector
	if len(per) > 1 {
		right = &per[1]
	}
	out, err := fusion.Combine(mode, per[0], right)
	if err != nil {
		return fundus.SubFeatureVector{}, err
	}
	if err := out.Validate(); err != nil {
		return fundus.SubFeatureVector{}, err
	}
	return out, nil
}
