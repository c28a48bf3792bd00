package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// Operation names a pipeline entry point.
type Operation string

const (
	OpExtract   Operation = "extract"
	OpNormalize Operation = "normalize"
	OpPredict   Operation = "predict"
)

// Run is the audit record of one pipeline call. It never carries pixels,
// covariates or feature values.
type Run struct {
	ID           string
	Operation    Operation
	StartedAt    time.Time
	Elapsed      time.Duration
	StatsVersion string
	Degenerate   bool
	RiskScore    *float64 // set by Predict
	Err          string
}

// RunRecorder persists Run records.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

func (p *Pipeline) record(ctx context.Context, run Run) {
	if p.runs == nil {
		return
	}
	// Recording must not be lost because the request itself was cancelled.
	if err := p.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		monitoring.Logf("[pipeline] failed to record run %s: %v", run.ID, err)
	}
}
