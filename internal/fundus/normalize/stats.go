// Package normalize owns the per-dimension z-score statistics applied to the
// assembled fusion vector, and their offline computation.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus"
)

// maxStatsFileSize bounds the stats file read at startup.
const maxStatsFileSize = 4 << 20

// Stats holds per-dimension training-population statistics in canonical
// fusion order. Loaded once at startup and never mutated.
type Stats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
	// Samples is the population size the stats were computed from, when known.
	Samples int `json:"samples,omitempty"`
}

// Validate checks both arrays have the fusion length and hold finite values
// with non-negative std.
func (s *Stats) Validate() error {
	if s == nil {
		return fmt.Errorf("normalization stats: nil")
	}
	if len(s.Mean) != fundus.FusionDim || len(s.Std) != fundus.FusionDim {
		return &fundus.FeatureShapeError{
			Component: "normalization stats",
			Want:      fundus.FusionDim,
			Got:       min(len(s.Mean), len(s.Std)),
			Reason:    fmt.Sprintf("mean has %d values, std has %d", len(s.Mean), len(s.Std)),
		}
	}
	if i := fundus.FirstNonFinite(s.Mean); i >= 0 {
		return fmt.Errorf("normalization stats: mean[%d] is %v", i, s.Mean[i])
	}
	for i, v := range s.Std {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("normalization stats: std[%d] is %v", i, v)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Stats) Clone() *Stats {
	out := &Stats{Mean: make([]float64, len(s.Mean)), Std: make([]float64, len(s.Std)), Samples: s.Samples}
	copy(out.Mean, s.Mean)
	copy(out.Std, s.Std)
	return out
}

// DecodeStats reads a {"mean":[...],"std":[...]} document and validates it.
func DecodeStats(r io.Reader) (*Stats, error) {
	var s Stats
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode normalization stats: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadStatsFile reads and validates a stats JSON file.
func LoadStatsFile(fsys fsutil.FileSystem, path string) (*Stats, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat normalization stats %s: %w", path, err)
	}
	if info.Size() > maxStatsFileSize {
		return nil, fmt.Errorf("normalization stats %s too large: %d bytes (max %d)", path, info.Size(), maxStatsFileSize)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read normalization stats %s: %w", path, err)
	}
	s, err := DecodeStats(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Marshal encodes the stats as JSON.
func (s *Stats) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// WriteStatsFile validates and writes stats as JSON.
func WriteStatsFile(fsys fsutil.FileSystem, path string, s *Stats) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("encode normalization stats: %w", err)
	}
	return fsys.WriteFile(path, data, 0o644)
}

// ComputeStats derives per-dimension mean and population standard deviation
// from a set of unnormalised fusion vectors.
func ComputeStats(rows []fundus.FusionFeatureVector) (*Stats, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("compute normalization stats: no feature rows")
	}
	for r, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("feature row %d: %w", r, err)
		}
	}
	s := &Stats{
		Mean:    make([]float64, fundus.FusionDim),
		Std:     make([]float64, fundus.FusionDim),
		Samples: len(rows),
	}
	col := make([]float64, len(rows))
	for i := 0; i < fundus.FusionDim; i++ {
		for r, row := range rows {
			col[r] = row[i]
		}
		s.Mean[i], s.Std[i] = stat.PopMeanStdDev(col, nil)
	}
	return s, nil
}
