package debug

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/extract"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/testutil"
)

func pmOf(t *testing.T, w, h int, p ...float64) *morphology.ProbabilityMap {
	t.Helper()
	pm, err := morphology.NewProbabilityMap(w, h, p)
	require.NoError(t, err)
	return pm
}

func TestAnalyzeMask_Statistics(t *testing.T) {
	d, err := AnalyzeMask("quad", pmOf(t, 2, 2, 0, 0.2, 0.4, 0.6))
	require.NoError(t, err)

	assert.Equal(t, 0.0, d.Min)
	assert.Equal(t, 0.6, d.Max)
	assert.InDelta(t, 0.3, d.Mean, 1e-12)
	assert.InDelta(t, 0.3, d.Median, 1e-12)
	assert.InDelta(t, math.Sqrt(0.05), d.Std, 1e-12)
	assert.Equal(t, 75.0, d.PercentNonzero)
	assert.Equal(t, 75.0, d.PercentAbove01)
	assert.Equal(t, 50.0, d.PercentAbove03)
	assert.Equal(t, 25.0, d.PercentAbove05)
	assert.True(t, d.Healthy(), d.String())
	assert.Contains(t, d.String(), "no issues found")
}

func TestAnalyzeMask_OddMedian(t *testing.T) {
	d, err := AnalyzeMask("row", pmOf(t, 3, 1, 0.9, 0.1, 0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.5, d.Median)
}

func TestAnalyzeMask_Issues(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  []string
	}{
		{"all background", 0, []string{"max value < 0.1", "<0.1% of pixels above 0.5", "very low mean", "very low std dev"}},
		{"all vessel", 1, []string{"very high mean", "very low std dev"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := AnalyzeMask(tt.name, morphology.Uniform(8, 8, tt.value))
			require.NoError(t, err)
			require.Len(t, d.Issues, len(tt.want))
			for i, prefix := range tt.want {
				assert.True(t, strings.HasPrefix(d.Issues[i].Summary, prefix), "issue %d = %q", i, d.Issues[i].Summary)
			}
			assert.False(t, d.Healthy())
			assert.Contains(t, d.String(), "->")
		})
	}
}

func TestAnalyzeMask_Empty(t *testing.T) {
	_, err := AnalyzeMask("nil", nil)
	assert.Error(t, err)
}

func TestImages(t *testing.T) {
	pm := pmOf(t, 2, 1, 0.2, 0.4)
	assert.Equal(t, []uint8{0, 255}, StretchedImage(pm).Pix)
	assert.Equal(t, []uint8{0, 0}, BinaryImage(pm, 0.4).Pix, "threshold is strict")
	assert.Equal(t, []uint8{0, 255}, BinaryImage(pm, 0.3).Pix)

	flat := morphology.Uniform(2, 1, 0.5)
	assert.Equal(t, []uint8{127, 127}, StretchedImage(flat).Pix)

	mask := morphology.NewMask(2, 1)
	mask.Set(0, 0, true)
	mask.Set(1, 0, true)
	skel := morphology.NewMask(2, 1)
	skel.Set(1, 0, true)
	ov := Overlay(mask, skel)
	assert.Equal(t, uint8(128), ov.RGBAAt(0, 0).G)
	assert.Equal(t, uint8(255), ov.RGBAAt(1, 0).R)
	assert.Equal(t, uint8(0), ov.RGBAAt(1, 0).G)
}

func TestWriteHistogram(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistogram(&buf, "radial", testutil.RadialProbabilityMap(64, 64, 8), 0.3))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestWriteReport(t *testing.T) {
	analysis, err := morphology.NewAnalyzer().Analyze(testutil.RadialProbabilityMap(64, 64, 8))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = WriteReport(&buf, "case-7", []EyeSummary{
		{Eye: fundus.EyeLeft, Descriptors: analysis.Descriptors},
		{Eye: fundus.EyeRight, Descriptors: analysis.Descriptors},
	})
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "Vessel descriptors")
	assert.Contains(t, html, "vessel_density")
	assert.NotContains(t, html, "Probability coverage")

	assert.Error(t, WriteReport(&buf, "empty", nil))
}

func TestWriteArtifacts(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	pm := testutil.RadialProbabilityMap(48, 48, 6)
	analysis, err := morphology.NewAnalyzer().Analyze(pm)
	require.NoError(t, err)

	paths, err := WriteArtifacts(fsys, "/debug", "case", morphology.DefaultThreshold, []extract.EyeReport{
		{Eye: fundus.EyeLeft, Probability: pm, Analysis: analysis},
		{Eye: fundus.EyeRight, Probability: pm},
	})
	require.NoError(t, err)

	want := []string{
		"/debug/case_left_hist.png",
		"/debug/case_left_prob.png",
		"/debug/case_left_binary.png",
		"/debug/case_left_skeleton.png",
		"/debug/case_right_hist.png",
		"/debug/case_right_prob.png",
		"/debug/case_right_binary.png",
		"/debug/case_report.html",
	}
	assert.Equal(t, want, paths)
	for _, p := range want {
		assert.True(t, fsys.Exists(p), p)
	}
	html, err := fsys.ReadFile("/debug/case_report.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "Probability coverage")
}

func TestWriteArtifacts_NoProbability(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	paths, err := WriteArtifacts(fsys, "/debug", "case", 0.3, []extract.EyeReport{{Eye: fundus.EyeLeft}})
	require.NoError(t, err)
	assert.Empty(t, paths)
}
