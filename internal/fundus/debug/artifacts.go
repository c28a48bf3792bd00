package debug

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus/extract"
	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// WriteArtifacts writes per-eye PNGs (histogram, stretched probability,
// thresholded mask, skeleton overlay) and one report.html under dir, naming
// files <stem>_<eye>_<kind>. It returns the paths written.
func WriteArtifacts(fsys fsutil.FileSystem, dir, stem string, tau float64, eyes []extract.EyeReport) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug dir: %w", err)
	}

	var written []string
	put := func(name string, render func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	summaries := make([]EyeSummary, 0, len(eyes))
	for _, e := range eyes {
		if e.Probability == nil {
			continue
		}
		prefix := fmt.Sprintf("%s_%s", stem, e.Eye)
		diag, err := AnalyzeMask(prefix, e.Probability)
		if err != nil {
			return written, err
		}
		if !diag.Healthy() {
			monitoring.Logf("[debug] %s: %d mask issue(s), first: %s", prefix, len(diag.Issues), diag.Issues[0].Summary)
		}

		pm := e.Probability
		if err := put(prefix+"_hist.png", func(w io.Writer) error {
			return WriteHistogram(w, prefix, pm, tau)
		}); err != nil {
			return written, err
		}
		if err := put(prefix+"_prob.png", func(w io.Writer) error {
			return EncodePNG(w, StretchedImage(pm))
		}); err != nil {
			return written, err
		}
		if err := put(prefix+"_binary.png", func(w io.Writer) error {
			return EncodePNG(w, BinaryImage(pm, tau))
		}); err != nil {
			return written, err
		}

		s := EyeSummary{Eye: e.Eye, Diagnostics: diag}
		if a := e.Analysis; a != nil {
			s.Descriptors = a.Descriptors
			if err := put(prefix+"_skeleton.png", func(w io.Writer) error {
				return EncodePNG(w, Overlay(a.Mask, a.Skeleton))
			}); err != nil {
				return written, err
			}
		}
		summaries = append(summaries, s)
	}
	if len(summaries) == 0 {
		return written, nil
	}

	err := put(stem+"_report.html", func(w io.Writer) error {
		return WriteReport(w, stem, summaries)
	})
	return written, err
}
