// Package pipeline wires the extractors, assembler and normalizer into the
// request-level entry points.
//
// A Pipeline is built once at startup from an explicit model registry and
// normalization stats, and is safe for concurrent use. Within a request the
// three extractors run concurrently; combine, assemble and normalize run
// strictly after all of them succeed. A failed or cancelled request never
// returns a partial vector.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/extract"
	"github.com/banshee-data/fundus.report/internal/fundus/fusion"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
	"github.com/banshee-data/fundus.report/internal/monitoring"
	"github.com/banshee-data/fundus.report/internal/timeutil"
)

// ErrNoStats is returned by ExtractAndNormalize and Predict on a Pipeline
// built without a Normalizer.
var ErrNoStats = errors.New("no normalization stats loaded")

// Request is one patient's input.
type Request struct {
	Left       *fundus.Image
	Right      *fundus.Image // optional
	Covariates fundus.ClinicalCovariates
}

// Result is the output of ExtractFusionFeatures or ExtractAndNormalize.
type Result struct {
	RequestID string
	// Features is the assembled vector: raw from ExtractFusionFeatures,
	// standardised from ExtractAndNormalize.
	Features   fundus.FusionFeatureVector
	Normalized bool

	Hypertension fundus.SubFeatureVector
	CIMT         fundus.SubFeatureVector
	Vessel       fundus.SubFeatureVector
	// VesselEyes holds per-eye probability maps and mask analyses.
	VesselEyes []extract.EyeReport
	// Warnings are non-fatal, e.g. *fundus.DegenerateMaskWarning.
	Warnings []error
	Elapsed  time.Duration

	score *float64
}

// Degenerate reports whether any vessel mask was degenerate.
func (r *Result) Degenerate() bool {
	for _, w := range r.Warnings {
		if errors.Is(w, fundus.ErrDegenerateMask) {
			return true
		}
	}
	return false
}

// Prediction is the fusion classifier's verdict with the per-model factors
// that contributed to it.
type Prediction struct {
	*Result
	Probability             float64
	Positive                bool
	Risk                    RiskLevel
	HypertensionProbability float64
	CIMTMillimetres         float64
	CIMTElevated            bool
	VesselDensity           float64
}

// Options configure a Pipeline. Zero values select defaults.
type Options struct {
	// Timeout bounds a whole request; 0 disables it.
	Timeout time.Duration
	// Analyzer overrides the morphology settings.
	Analyzer *morphology.Analyzer
	// Classifier overrides the registry-backed fusion classifier.
	Classifier Classifier
	// Runs receives one record per completed call when set.
	Runs RunRecorder
	// StatsVersion identifies the normalization stats in run records.
	StatsVersion string
	Clock        timeutil.Clock
}

// Pipeline is the feature extraction entry point.
type Pipeline struct {
	htn        extract.Extractor
	cimt       extract.Extractor
	vessel     extract.Extractor
	norm       *normalize.Normalizer
	classifier Classifier
	runs       RunRecorder
	statsVer   string
	timeout    time.Duration
	clock      timeutil.Clock
}

// New builds the extractors over reg. norm may be nil when only raw features
// are needed; ExtractAndNormalize and Predict then fail.
func New(reg *registry.Registry, norm *normalize.Normalizer, opts Options) (*Pipeline, error) {
	htn, err := extract.NewHypertensionExtractor(reg)
	if err != nil {
		return nil, err
	}
	cimt, err := extract.NewCIMTExtractor(reg)
	if err != nil {
		return nil, err
	}
	vessel, err := extract.NewVesselExtractor(reg, opts.Analyzer)
	if err != nil {
		return nil, err
	}
	classifier := opts.Classifier
	if classifier == nil {
		if _, ok := reg.Spec(fundus.ModelFusion); ok {
			if classifier, err = NewModelClassifier(reg); err != nil {
				return nil, err
			}
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		htn:        htn,
		cimt:       cimt,
		vessel:     vessel,
		norm:       norm,
		classifier: classifier,
		runs:       opts.Runs,
		statsVer:   opts.StatsVersion,
		timeout:    opts.Timeout,
		clock:      clock,
	}, nil
}

// ExtractFusionFeatures returns the unnormalised 1425-value vector.
func (p *Pipeline) ExtractFusionFeatures(ctx context.Context, req Request) (*Result, error) {
	return p.run(ctx, OpExtract, req, func(context.Context, *Result) error { return nil })
}

// ExtractAndNormalize returns the standardised vector ready for the fusion
// classifier.
func (p *Pipeline) ExtractAndNormalize(ctx context.Context, req Request) (*Result, error) {
	return p.run(ctx, OpNormalize, req, p.normalize)
}

// Predict extracts, normalises and classifies.
func (p *Pipeline) Predict(ctx context.Context, req Request) (*Prediction, error) {
	var pred *Prediction
	_, err := p.run(ctx, OpPredict, req, func(ctx context.Context, res *Result) error {
		if err := p.normalize(ctx, res); err != nil {
			return err
		}
		if p.classifier == nil {
			return errors.New("no fusion classifier configured")
		}
		prob, err := p.classifier.Classify(ctx, res.Features)
		if err != nil {
			return err
		}
		cimt := res.CIMT.Values[0]
		pred = &Prediction{
			Result:                  res,
			Probability:             prob,
			Positive:                prob >= PositiveAbove,
			Risk:                    ClassifyRisk(prob),
			HypertensionProbability: res.Hypertension.Values[0],
			CIMTMillimetres:         cimt,
			CIMTElevated:            cimt > ElevatedCIMTMillimetres,
			VesselDensity:           res.Vessel.Values[fundus.VesselDescriptorBase],
		}
		res.score = &prob
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pred, nil
}

func (p *Pipeline) normalize(_ context.Context, res *Result) error {
	if p.norm == nil {
		return ErrNoStats
	}
	z, err := p.norm.Normalize(res.Features)
	if err != nil {
		return err
	}
	res.Features = z
	res.Normalized = true
	return nil
}

// run executes extraction plus the stage-specific tail, applies the timeout,
// logs and records the call.
func (p *Pipeline) run(ctx context.Context, op Operation, req Request, tail func(context.Context, *Result) error) (*Result, error) {
	id := uuid.NewString()
	start := p.clock.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.extract(ctx, id, req)
	if err == nil {
		err = tail(ctx, res)
	}
	if err == nil {
		// Work finished but the deadline passed: nothing partial goes out.
		err = ctx.Err()
	}
	elapsed := p.clock.Since(start)

	if err != nil {
		monitoring.Logf("[pipeline] %s %s failed after %v: %v", op, id, elapsed, err)
		p.record(ctx, Run{ID: id, Operation: op, StartedAt: start, Elapsed: elapsed, StatsVersion: p.statsVer, Err: err.Error()})
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	res.Elapsed = elapsed
	monitoring.Logf("[pipeline] %s %s done in %v (%d warnings)", op, id, elapsed, len(res.Warnings))
	p.record(ctx, Run{ID: id, Operation: op, StartedAt: start, Elapsed: elapsed, StatsVersion: p.statsVer, Degenerate: res.Degenerate(), RiskScore: res.score})
	return res, nil
}

// extract fans the three extractors out and assembles the raw vector.
func (p *Pipeline) extract(ctx context.Context, id string, req Request) (*Result, error) {
	in := extract.Input{Left: req.Left, Right: req.Right, Covariates: req.Covariates}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := req.Covariates.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var htn, cimt, vessel *extract.Output
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		htn, err = p.htn.Extract(gctx, in)
		return err
	})
	g.Go(func() (err error) {
		cimt, err = p.cimt.Extract(gctx, in)
		return err
	})
	g.Go(func() (err error) {
		vessel, err = p.vessel.Extract(gctx, in)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	v, err := fusion.Assemble(htn.Features, cimt.Features, vessel.Features)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RequestID:    id,
		Features:     v,
		Hypertension: htn.Features,
		CIMT:         cimt.Features,
		Vessel:       vessel.Features,
		VesselEyes:   vessel.Eyes,
	}
	for _, out := range []*extract.Output{htn, cimt, vessel} {
		res.Warnings = append(res.Warnings, out.Warnings...)
	}
	return res, nil
}
