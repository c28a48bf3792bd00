package extract

import (
	"context"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/fusion"
	"github.com/banshee-data/fundus.report/internal/fundus/preprocess"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// CIMTExtractor runs the bilateral CIMT regressor. Both eyes and the
// clinical covariates enter the model jointly, so there is no averaging
// afterwards. Output is [raw prediction (mm), embedding...].
type CIMTExtractor struct {
	run  runner
	spec preprocess.Spec
}

// NewCIMTExtractor resolves the model's preprocessing once.
func NewCIMTExtractor(reg *registry.Registry) (*CIMTExtractor, error) {
	run, err := newRunner(reg, fundus.ModelCIMT)
	if err != nil {
		return nil, err
	}
	spec, err := reg.Preprocessing(fundus.ModelCIMT)
	if err != nil {
		return nil, err
	}
	return &CIMTExtractor{run: run, spec: spec}, nil
}

func (e *CIMTExtractor) Model() fundus.ModelID { return fundus.ModelCIMT }

// Mode is informational: bilateral fusion happens inside the model.
func (e *CIMTExtractor) Mode() fusion.CombineMode { return fusion.CombineSingleEye }

// Extract feeds [left, right, clinical] to the model. With only one eye the
// left image fills both slots.
func (e *CIMTExtractor) Extract(ctx context.Context, in Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := in.Covariates.Validate(); err != nil {
		return nil, err
	}

	left, err := preprocess.Apply(in.Left, e.spec)
	if err != nil {
		return nil, err
	}
	right := left
	if in.Right != nil {
		if right, err = preprocess.Apply(in.Right, e.spec); err != nil {
			return nil, err
		}
	} else {
		monitoring.Logf("[cimt] right eye missing, duplicating left eye into both bilateral slots")
	}
	clinical, err := fundus.NewTensor([]int64{1, 3}, in.Covariates.Vector())
	if err != nil {
		return nil, err
	}

	outs, err := e.run.infer(ctx, left, right, clinical)
	if err != nil {
		return nil, err
	}
	v, err := subVector(fundus.ModelCIMT, float64(outs[0].Data[0]), outs[1].Data)
	if err != nil {
		return nil, err
	}
	return &Output{Features: v}, nil
}
