package main

import (
	"github.com/spf13/cobra"
)

type predictOutput struct {
	RequestID               string                        `json:"request_id"`
	Probability             float64                       `json:"probability"`
	Positive                bool                          `json:"positive"`
	Risk                    string                        `json:"risk_level"`
	HypertensionProbability float64                       `json:"hypertension_probability"`
	CIMTMillimetres         float64                       `json:"cimt_mm"`
	CIMTElevated            bool                          `json:"cimt_elevated"`
	VesselDensity           float64                       `json:"vessel_density"`
	Descriptors             map[string]map[string]float64 `json:"vessel_descriptors,omitempty"`
	Warnings                []string                      `json:"warnings,omitempty"`
	ElapsedMs               float64                       `json:"elapsed_ms"`
	Debug                   []string                      `json:"debug_artifacts,omitempty"`
}

func newPredictCmd(a *app) *cobra.Command {
	var pf patientFlags
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the fusion classifier on one patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := a.loadRequest(pf.left, pf.right, pf.age, pf.sex)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, true)
			if err != nil {
				return err
			}
			pred, err := p.Predict(ctx, req)
			if err != nil {
				return err
			}
			out := predictOutput{
				RequestID:               pred.RequestID,
				Probability:             pred.Probability,
				Positive:                pred.Positive,
				Risk:                    string(pred.Risk),
				HypertensionProbability: pred.HypertensionProbability,
				CIMTMillimetres:         pred.CIMTMillimetres,
				CIMTElevated:            pred.CIMTElevated,
				VesselDensity:           pred.VesselDensity,
				Descriptors:             descriptorMaps(pred.Result),
				Warnings:                warningStrings(pred.Warnings),
				ElapsedMs:               float64(pred.Elapsed.Microseconds()) / 1000,
			}
			if pf.debug {
				if out.Debug, err = a.writeDebug(pf.stem(), pred.Result); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	pf.register(cmd)
	return cmd
}
