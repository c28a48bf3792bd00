package normalize

import (
	"bytes"
	"io/fs"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus"
)

func testStats() *Stats {
	s := &Stats{Mean: make([]float64, fundus.FusionDim), Std: make([]float64, fundus.FusionDim)}
	for i := range s.Mean {
		s.Mean[i] = math.Sin(float64(i)) * 3
		s.Std[i] = 0.5 + float64(i%11)
	}
	s.Std[42] = 0 // constant training dimension
	return s
}

func testVector(seed float64) fundus.FusionFeatureVector {
	v := make(fundus.FusionFeatureVector, fundus.FusionDim)
	for i := range v {
		v[i] = math.Cos(float64(i)*seed) * 10
	}
	return v
}

func TestNormalizer_RoundTrip(t *testing.T) {
	n, err := New(testStats())
	require.NoError(t, err)

	v := testVector(0.37)
	z, err := n.Normalize(v)
	require.NoError(t, err)
	require.Len(t, z, fundus.FusionDim)

	back, err := n.Denormalize(z)
	require.NoError(t, err)
	if diff := cmp.Diff(v, back, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizer_Formula(t *testing.T) {
	s := testStats()
	n, err := New(s)
	require.NoError(t, err)

	v := testVector(1.1)
	z, err := n.Normalize(v)
	require.NoError(t, err)
	for _, i := range []int{0, 42, 1024, 1424} {
		want := (v[i] - s.Mean[i]) / (s.Std[i] + Epsilon)
		assert.Equal(t, want, z[i], "dimension %d", i)
	}
	assert.False(t, math.IsInf(z[42], 0))
}

func TestNormalizer_IsolatedFromCallerStats(t *testing.T) {
	s := testStats()
	n, err := New(s)
	require.NoError(t, err)
	s.Mean[0] = 1e9
	assert.NotEqual(t, 1e9, n.Stats().Mean[0])
}

func TestNormalizer_RejectsBadVectors(t *testing.T) {
	n, err := New(testStats())
	require.NoError(t, err)

	_, err = n.Normalize(make(fundus.FusionFeatureVector, 1424))
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)

	v := testVector(0.5)
	v[3] = math.NaN()
	_, err = n.Normalize(v)
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)

	// A huge value over a zero std overflows to Inf and must be escalated.
	v = testVector(0.5)
	v[42] = math.MaxFloat64
	_, err = n.Normalize(v)
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)
}

func TestStats_Validate(t *testing.T) {
	require.NoError(t, testStats().Validate())

	short := testStats()
	short.Std = short.Std[:10]
	assert.ErrorIs(t, short.Validate(), fundus.ErrFeatureShape)

	neg := testStats()
	neg.Std[5] = -1
	assert.Error(t, neg.Validate())

	nan := testStats()
	nan.Mean[5] = math.NaN()
	assert.Error(t, nan.Validate())

	_, err := New(nil)
	assert.Error(t, err)
}

func TestComputeStats_PopulationStd(t *testing.T) {
	a := make(fundus.FusionFeatureVector, fundus.FusionDim)
	b := make(fundus.FusionFeatureVector, fundus.FusionDim)
	for i := range a {
		a[i] = 1
		b[i] = 3
	}
	b[7] = 1

	s, err := ComputeStats([]fundus.FusionFeatureVector{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Samples)
	assert.InDelta(t, 2.0, s.Mean[0], 1e-12)
	assert.InDelta(t, 1.0, s.Std[0], 1e-12, "population std, not sample std")
	assert.InDelta(t, 1.0, s.Mean[7], 1e-12)
	assert.Zero(t, s.Std[7])
	require.NoError(t, s.Validate())

	_, err = ComputeStats(nil)
	assert.Error(t, err)
	_, err = ComputeStats([]fundus.FusionFeatureVector{a[:100]})
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)
}

func TestComputeStats_NormalisedPopulationIsStandard(t *testing.T) {
	var rows []fundus.FusionFeatureVector
	for k := 1; k <= 20; k++ {
		rows = append(rows, testVector(float64(k)*0.13))
	}
	s, err := ComputeStats(rows)
	require.NoError(t, err)
	n, err := New(s)
	require.NoError(t, err)

	var zs []fundus.FusionFeatureVector
	for _, r := range rows {
		z, err := n.Normalize(r)
		require.NoError(t, err)
		zs = append(zs, z)
	}
	zStats, err := ComputeStats(zs)
	require.NoError(t, err)
	for _, i := range []int{1, 500, 1400} {
		assert.InDelta(t, 0.0, zStats.Mean[i], 1e-9)
		assert.InDelta(t, 1.0, zStats.Std[i], 1e-6)
	}
}

func TestLoadStatsFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteStatsFile(mfs, "/stats/normalization_stats.json", testStats()))

	s, err := LoadStatsFile(mfs, "/stats/normalization_stats.json")
	require.NoError(t, err)
	if diff := cmp.Diff(testStats(), s); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadStatsFile(mfs, "/stats/missing.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, mfs.WriteFile("/stats/bad.json", []byte(`{"mean":[1],"std":[1]}`), 0o644))
	_, err = LoadStatsFile(mfs, "/stats/bad.json")
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)

	require.NoError(t, mfs.WriteFile("/stats/garbage.json", []byte(`{`), 0o644))
	_, err = LoadStatsFile(mfs, "/stats/garbage.json")
	assert.Error(t, err)
}

func TestFeatureCSV_RoundTripWithHeader(t *testing.T) {
	rows := []fundus.FusionFeatureVector{testVector(0.2), testVector(0.9)}
	var buf bytes.Buffer

	header := make([]string, fundus.FusionDim)
	for i := range header {
		header[i] = "f" + strings.Repeat("x", i%3)
	}
	buf.WriteString(strings.Join(header, ",") + "\n")
	require.NoError(t, WriteFeatureCSV(&buf, rows))

	got, err := ReadFeatureCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Errorf("csv round trip (-want +got):\n%s", diff)
	}

	_, err = ReadFeatureCSV(strings.NewReader("1,2,3\n"))
	assert.Error(t, err)
}
