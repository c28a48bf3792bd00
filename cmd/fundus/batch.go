package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/monitoring"
	"github.com/banshee-data/fundus.report/internal/security"
)

// manifestRow is one patient in a batch manifest.
type manifestRow struct {
	line        int
	left, right string
	age         int
	sex         string
}

// readManifest parses a CSV with header left,right,age,sex. Image paths are
// resolved against dir.
func readManifest(r io.Reader, dir string) ([]manifestRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("manifest is empty")
	}
	want := []string{"left", "right", "age", "sex"}
	for i, h := range records[0] {
		if strings.ToLower(strings.TrimSpace(h)) != want[i] {
			return nil, fmt.Errorf("manifest header must be %s, got %v", strings.Join(want, ","), records[0])
		}
	}

	rows := make([]manifestRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		age, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad age %q", i+2, rec[2])
		}
		row := manifestRow{line: i + 2, age: age, sex: strings.TrimSpace(rec[3])}
		row.left = resolve(dir, rec[0])
		row.right = resolve(dir, rec[1])
		rows = append(rows, row)
	}
	return rows, nil
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		manifest string
		out      string
		workers  int
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Extract raw fusion vectors for every patient in a manifest CSV",
		Long: "Reads a CSV manifest (left,right,age,sex) and writes one raw 1425-column row per\n" +
			"patient, in manifest order. The output feeds `fundus stats compute`.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := security.ValidateOutputPath(out); err != nil {
				return err
			}
			f, err := a.fsys.Open(manifest)
			if err != nil {
				return err
			}
			rows, err := readManifest(f, filepath.Dir(manifest))
			f.Close()
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, false)
			if err != nil {
				return err
			}

			results := make([]fundus.FusionFeatureVector, len(rows))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(1, workers))
			for i, row := range rows {
				i, row := i, row
				g.Go(func() error {
					req, err := a.loadRequest(row.left, row.right, row.age, row.sex)
					if err == nil {
						res, rerr := p.ExtractFusionFeatures(gctx, req)
						if rerr == nil {
							results[i] = res.Features
							return nil
						}
						err = rerr
					}
					if strict {
						return fmt.Errorf("manifest line %d: %w", row.line, err)
					}
					monitoring.Logf("[batch] skipping manifest line %d: %v", row.line, err)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			kept := make([]fundus.FusionFeatureVector, 0, len(results))
			for _, v := range results {
				if v != nil {
					kept = append(kept, v)
				}
			}
			w, err := a.fsys.Create(out)
			if err != nil {
				return err
			}
			if err := normalize.WriteFeatureCSV(w, kept); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s (%d skipped)\n", len(kept), out, len(rows)-len(kept))
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "manifest CSV (required)")
	cmd.Flags().StringVar(&out, "out", "features.csv", "output feature CSV")
	cmd.Flags().IntVar(&workers, "workers", 4, "patients processed concurrently")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on the first bad patient instead of skipping it")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}
