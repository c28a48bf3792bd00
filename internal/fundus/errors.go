package fundus

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrModelLoad      = errors.New("model load failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrFeatureShape   = errors.New("feature shape mismatch")
	ErrDegenerateMask = errors.New("degenerate vessel mask")
)

// ModelLoadError is fatal at startup and never retried: the weight file is
// missing or corrupt, or its I/O shapes disagree with the declared
// architecture.
type ModelLoadError struct {
	Model ModelID
	Path  string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s from %q: %v", e.Model, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// InvalidInputError fails only the current request.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// FeatureShapeError signals a model/weight/pipeline version mismatch: a
// sub-vector or the assembled vector deviates from its documented length, or
// carries a non-finite value.
type FeatureShapeError struct {
	Component string
	Want      int
	Got       int
	Reason    string
}

func (e *FeatureShapeError) Error() string {
	msg := fmt.Sprintf("feature shape mismatch in %s", e.Component)
	if e.Want != 0 || e.Got != 0 {
		msg += fmt.Sprintf(": want %d values, got %d", e.Want, e.Got)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *FeatureShapeError) Is(target error) bool { return target == ErrFeatureShape }

// DegenerateMaskWarning is informational. A near-empty vessel mask is handled
// by the 0.0 descriptor convention and reported, never returned as a failure.
type DegenerateMaskWarning struct {
	Eye              Eye
	ForegroundPixels int
	Fraction         float64
}

func (w *DegenerateMaskWarning) Error() string {
	return fmt.Sprintf("degenerate vessel mask (%s eye): %d foreground pixels (%.6f of image)",
		w.Eye, w.ForegroundPixels, w.Fraction)
}

func (w *DegenerateMaskWarning) Is(target error) bool { return target == ErrDegenerateMask }
