package extract

import (
	"context"
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/fusion"
	"github.com/banshee-data/fundus.report/internal/fundus/preprocess"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
)

// HypertensionExtractor runs the single-eye hypertension classifier and
// emits [sigmoid(logit), embedding...]. Both eyes are averaged.
type HypertensionExtractor struct {
	run  runner
	spec preprocess.Spec
}

// NewHypertensionExtractor resolves the model's preprocessing once.
func NewHypertensionExtractor(reg *registry.Registry) (*HypertensionExtractor, error) {
	run, err := newRunner(reg, fundus.ModelHypertension)
	if err != nil {
		return nil, err
	}
	spec, err := reg.Preprocessing(fundus.ModelHypertension)
	if err != nil {
		return nil, err
	}
	return &HypertensionExtractor{run: run, spec: spec}, nil
}

func (e *HypertensionExtractor) Model() fundus.ModelID    { return fundus.ModelHypertension }
func (e *HypertensionExtractor) Mode() fusion.CombineMode { return fusion.CombineAverage }

// Extract runs every supplied eye independently and averages the results.
func (e *HypertensionExtractor) Extract(ctx context.Context, in Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var per []fundus.SubFeatureVector
	for _, eye := range in.Eyes() {
		v, err := e.ExtractEye(ctx, eye.Image)
		if err != nil {
			return nil, fmt.Errorf("%s eye: %w", eye.Eye, err)
		}
		per = append(per, v)
	}
	combined, err := combineEyes(e.Mode(), per)
	if err != nil {
		return nil, err
	}
	return &Output{Features: combined}, nil
}

// ExtractEye returns the 1025-value sub-vector for one image.
func (e *HypertensionExtractor) ExtractEye(ctx context.Context, img *fundus.Image) (fundus.SubFeatureVector, error) {
	x, err := preprocess.Apply(img, e.spec)
	if err != nil {
		return fundus.SubFeatureVector{}, err
	}
	outs, err := e.run.infer(ctx, x)
	if err != nil {
		return fundus.SubFeatureVector{}, err
	}
	prob := fundus.Sigmoid(float64(outs[0].Data[0]))
	return subVector(fundus.ModelHypertension, prob, outs[1].Data)
}
