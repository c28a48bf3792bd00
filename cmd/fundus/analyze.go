package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/debug"
	"github.com/banshee-data/fundus.report/internal/fundus/extract"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/security"
)

func newAnalyzeMaskCmd(a *app) *cobra.Command {
	var (
		imagePath string
		eye       string
		outDir    string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "analyze-mask",
		Short: "Segment one image and report vessel mask diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			side := fundus.Eye(eye)
			if side != fundus.EyeLeft && side != fundus.EyeRight {
				return &fundus.InvalidInputError{Field: "eye", Reason: fmt.Sprintf("must be left or right, got %q", eye)}
			}
			img, err := a.loadImage(imagePath)
			if err != nil {
				return err
			}
			reg, err := a.registry(ctx)
			if err != nil {
				return err
			}
			analyzer := a.cfg.Analyzer()
			if cmd.Flags().Changed("threshold") {
				analyzer.Threshold = threshold
			}
			vx, err := extract.NewVesselExtractor(reg, analyzer)
			if err != nil {
				return err
			}
			_, report, err := vx.ExtractEye(ctx, side, img)
			if err != nil {
				return err
			}

			stem := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath)))
			diag, err := debug.AnalyzeMask(stem, report.Probability)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprint(w, diag.String())
			if an := report.Analysis; an != nil {
				fmt.Fprintf(w, "threshold %.3f, foreground %d px, degenerate %v\n", analyzer.Threshold, an.Foreground, an.Degenerate)
				printDescriptors(w, an.Descriptors)
			}

			if outDir == "" {
				outDir = a.cfg.GetDebugDir()
			}
			paths, err := debug.WriteArtifacts(a.fsys, outDir, stem, analyzer.Threshold, []extract.EyeReport{report})
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(w, "wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "fundus image (required)")
	cmd.Flags().StringVar(&eye, "eye", "left", "which eye the image shows")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "artifact directory (default: debug_dir)")
	cmd.Flags().Float64Var(&threshold, "threshold", morphology.DefaultThreshold, "override vessel_threshold")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func printDescriptors(w io.Writer, d morphology.Descriptors) {
	vals := d.Vector()
	for i, name := range morphology.Names() {
		fmt.Fprintf(w, "  %-28s %12.6f\n", name, vals[i])
	}
}
