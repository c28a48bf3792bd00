package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/fundus/debug"
	"github.com/banshee-data/fundus.report/internal/fundus/pipeline"
	"github.com/banshee-data/fundus.report/internal/security"
)

// patientFlags are shared by extract and predict.
type patientFlags struct {
	left, right string
	age         int
	sex         string
	debug       bool
}

func (f *patientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.left, "left", "", "left eye image (required)")
	cmd.Flags().StringVar(&f.right, "right", "", "right eye image")
	cmd.Flags().IntVar(&f.age, "age", 0, "patient age in years")
	cmd.Flags().StringVar(&f.sex, "sex", "", "patient sex: male|female")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "write vessel mask diagnostics to debug_dir")
	_ = cmd.MarkFlagRequired("left")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("sex")
}

// stem names debug artifacts after the left image.
func (f *patientFlags) stem() string {
	base := filepath.Base(f.left)
	return security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
}

type extractOutput struct {
	RequestID   string                        `json:"request_id"`
	Normalized  bool                          `json:"normalized"`
	Dims        int                           `json:"dims"`
	Features    []float64                     `json:"features"`
	Descriptors map[string]map[string]float64 `json:"vessel_descriptors,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`
	ElapsedMs   float64                       `json:"elapsed_ms"`
	Debug       []string                      `json:"debug_artifacts,omitempty"`
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		pf        patientFlags
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the 1425-dim fusion feature vector for one patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := a.loadRequest(pf.left, pf.right, pf.age, pf.sex)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, normalize)
			if err != nil {
				return err
			}
			var res *pipeline.Result
			if normalize {
				res, err = p.ExtractAndNormalize(ctx, req)
			} else {
				res, err = p.ExtractFusionFeatures(ctx, req)
			}
			if err != nil {
				return err
			}

			out := extractOutput{
				RequestID:   res.RequestID,
				Normalized:  res.Normalized,
				Dims:        len(res.Features),
				Features:    res.Features,
				Descriptors: descriptorMaps(res),
				Warnings:    warningStrings(res.Warnings),
				ElapsedMs:   float64(res.Elapsed.Microseconds()) / 1000,
			}
			if pf.debug {
				if out.Debug, err = a.writeDebug(pf.stem(), res); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&normalize, "normalize", false, "standardise with the loaded normalization stats")
	return cmd
}

func (a *app) writeDebug(stem string, res *pipeline.Result) ([]string, error) {
	return debug.WriteArtifacts(a.fsys, a.cfg.GetDebugDir(), stem, a.cfg.GetVesselThreshold(), res.VesselEyes)
}

func descriptorMaps(res *pipeline.Result) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(res.VesselEyes))
	for _, e := range res.VesselEyes {
		if e.Analysis != nil {
			out[string(e.Eye)] = e.Analysis.Descriptors.Map()
		}
	}
	return out
}

func warningStrings(ws []error) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Error())
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
