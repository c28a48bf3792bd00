package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// ReadFeatureCSV parses unnormalised fusion vectors, one per line with
// FusionDim comma-separated values. A non-numeric first line is treated as a
// header and skipped.
func ReadFeatureCSV(r io.Reader) ([]fundus.FusionFeatureVector, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fundus.FusionDim
	cr.ReuseRecord = true

	var rows []fundus.FusionFeatureVector
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feature csv: %w", err)
		}
		row := make(fundus.FusionFeatureVector, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				if line == 1 && i == 0 {
					row = nil
					break
				}
				return nil, fmt.Errorf("feature csv line %d column %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// WriteFeatureCSV writes vectors in the format ReadFeatureCSV accepts.
func WriteFeatureCSV(w io.Writer, rows []fundus.FusionFeatureVector) error {
	cw := csv.NewWriter(w)
	rec := make([]string, fundus.FusionDim)
	for r, row := range rows {
		if len(row) != fundus.FusionDim {
			return &fundus.FeatureShapeError{Component: fmt.Sprintf("feature row %d", r), Want: fundus.FusionDim, Got: len(row)}
		}
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
