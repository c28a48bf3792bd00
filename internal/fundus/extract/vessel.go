package extract

import (
	"context"
	"fmt"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/fusion"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/fundus/preprocess"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// VesselExtractor runs the segmentation network and the morphology analyzer.
// Output is [256 pooled encoder features, 15 descriptors], averaged over
// both eyes.
type VesselExtractor struct {
	run      runner
	spec     preprocess.Spec
	analyzer *morphology.Analyzer
}

// NewVesselExtractor resolves preprocessing once. A nil analyzer uses the
// production defaults.
func NewVesselExtractor(reg *registry.Registry, analyzer *morphology.Analyzer) (*VesselExtractor, error) {
	run, err := newRunner(reg, fundus.ModelVessel)
	if err != nil {
		return nil, err
	}
	spec, err := reg.Preprocessing(fundus.ModelVessel)
	if err != nil {
		return nil, err
	}
	if spec.Standardize {
		return nil, fmt.Errorf("vessel extractor: segmentation input must not be standardised")
	}
	if analyzer == nil {
		analyzer = morphology.NewAnalyzer()
	}
	if err := analyzer.Validate(); err != nil {
		return nil, err
	}
	return &VesselExtractor{run: run, spec: spec, analyzer: analyzer}, nil
}

func (e *VesselExtractor) Model() fundus.ModelID    { return fundus.ModelVessel }
func (e *VesselExtractor) Mode() fusion.CombineMode { return fusion.CombineAverage }

// Analyzer returns the morphology settings in use.
func (e *VesselExtractor) Analyzer() *morphology.Analyzer { return e.analyzer }

// Extract segments every supplied eye and averages learned features and
// descriptors elementwise.
func (e *VesselExtractor) Extract(ctx context.Context, in Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	out := &Output{}
	var per []fundus.SubFeatureVector
	for _, eye := range in.Eyes() {
		v, report, err := e.ExtractEye(ctx, eye.Eye, eye.Image)
		if err != nil {
			return nil, fmt.Errorf("%s eye: %w", eye.Eye, err)
		}
		per = append(per, v)
		out.Eyes = append(out.Eyes, report)
		if report.Analysis.Degenerate {
			w := &fundus.DegenerateMaskWarning{
				Eye:              eye.Eye,
				ForegroundPixels: report.Analysis.Foreground,
				Fraction:         report.Analysis.Descriptors.VesselDensity,
			}
			monitoring.Logf("[vessel] warning: %v", w)
			out.Warnings = append(out.Warnings, w)
		}
	}
	combined, err := combineEyes(e.Mode(), per)
	if err != nil {
		return nil, err
	}
	out.Features = combined
	return out, nil
}

// ExtractEye returns the 271-value sub-vector for one image together with
// its probability map and mask analysis.
func (e *VesselExtractor) ExtractEye(ctx context.Context, eye fundus.Eye, img *fundus.Image) (fundus.SubFeatureVector, EyeReport, error) {
	x, err := preprocess.Apply(img, e.spec)
	if err != nil {
		return fundus.SubFeatureVector{}, EyeReport{}, err
	}
	outs, err := e.run.infer(ctx, x)
	if err != nil {
		return fundus.SubFeatureVector{}, EyeReport{}, err
	}
	pm, err := morphology.FromLogits(e.spec.Width, e.spec.Height, outs[0].Data)
	if err != nil {
		return fundus.SubFeatureVector{}, EyeReport{}, err
	}
	analysis, err := e.analyzer.Analyze(pm)
	if err != nil {
		return fundus.SubFeatureVector{}, EyeReport{}, err
	}

	learned := outs[1].Data
	values := make([]float64, 0, fundus.VesselDim)
	for _, f := range learned {
		values = append(values, float64(f))
	}
	values = append(values, analysis.Descriptors.Vector()...)
	v := fundus.SubFeatureVector{Source: fundus.ModelVessel, Values: values}
	if err := v.Validate(); err != nil {
		return fundus.SubFeatureVector{}, EyeReport{}, err
	}
	return v, EyeReport{Eye: eye, Probability: pm, Analysis: analysis}, nil
}
