package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
)

// Classifier consumes a normalised fusion vector and returns a risk
// probability in [0,1].
type Classifier interface {
	Classify(ctx context.Context, v fundus.FusionFeatureVector) (float64, error)
}

// ModelClassifier runs the fusion model held by the registry and applies a
// sigmoid to its single logit.
type ModelClassifier struct {
	reg  *registry.Registry
	arch registry.Architecture
}

// NewModelClassifier binds the fusion model.
func NewModelClassifier(reg *registry.Registry) (*ModelClassifier, error) {
	if reg == nil {
		return nil, errors.New("fusion classifier: nil registry")
	}
	spec, ok := reg.Spec(fundus.ModelFusion)
	if !ok {
		return nil, errors.New("fusion classifier: fusion model not registered")
	}
	return &ModelClassifier{reg: reg, arch: spec.Architecture}, nil
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, v fundus.FusionFeatureVector) (float64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	m, err := c.reg.Get(ctx, fundus.ModelFusion)
	if err != nil {
		return 0, err
	}
	data := make([]float32, len(v))
	for i, x := range v {
		data[i] = float32(x)
	}
	in, err := fundus.NewTensor([]int64{1, int64(len(v))}, data)
	if err != nil {
		return 0, err
	}
	outs, err := m.Infer(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("fusion inference: %w", err)
	}
	if err := c.arch.CheckOutputs(outs); err != nil {
		return 0, err
	}
	p := fundus.Sigmoid(float64(outs[0].Data[0]))
	if fundus.FirstNonFinite([]float64{p}) >= 0 {
		return 0, &fundus.FeatureShapeError{Component: "fusion", Reason: "non-finite risk score"}
	}
	return p, nil
}
