package morphology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// rect returns a probability map with p=1 inside [x0,x1)x[y0,y1) and 0 elsewhere.
func rect(w, h, x0, y0, x1, y1 int) *ProbabilityMap {
	pm := Uniform(w, h, 0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			pm.P[y*w+x] = 1
		}
	}
	return pm
}

func maskFrom(w, h int, on ...[2]int) *Mask {
	m := NewMask(w, h)
	for _, p := range on {
		m.Set(p[0], p[1], true)
	}
	return m
}

func TestAnalyze_AllWhite512(t *testing.T) {
	a := NewAnalyzer()
	res, err := a.Analyze(Uniform(512, 512, 1))
	require.NoError(t, err)

	d := res.Descriptors
	assert.Equal(t, 1.0, d.VesselDensity)
	assert.Equal(t, 1.0, d.ComponentCount)
	assert.Equal(t, 1.0, d.LargestComponentFraction)
	assert.Equal(t, 1.0, d.PeripheralDensity)
	assert.Equal(t, 1.0, d.CentralDensity)
	assert.InDelta(t, 2.0, d.FractalDimension, 1e-9)
	assert.Zero(t, d.TextureVariance)
	assert.False(t, res.Degenerate)
	assert.Equal(t, 512*512, res.Foreground)
	assert.Equal(t, -1, fundus.FirstNonFinite(d.Vector()))
}

func TestAnalyze_AllZeroIsFiniteAndZero(t *testing.T) {
	res, err := NewAnalyzer().Analyze(Uniform(512, 512, 0))
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Zero(t, res.Foreground)

	v := res.Descriptors.Vector()
	require.Len(t, v, fundus.VesselDescriptorDim)
	for i, x := range v {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "%s = %v", Names()[i], x)
	}
	assert.Zero(t, res.Descriptors.VesselDensity)
	assert.Zero(t, res.Descriptors.PeripheralDensity)
	assert.Zero(t, res.Descriptors.CentralDensity)
}

// gradientWithVessels is a fixed synthetic map: a left-to-right ramp overlaid
// with a few bright horizontal and vertical bands.
func gradientWithVessels(w, h int) *ProbabilityMap {
	pm := Uniform(w, h, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.6 * float64(x) / float64(w-1)
			if (y%64) < 4 || (x%96) < 3 {
				v = 0.4 + 0.5*float64(y)/float64(h-1)
			}
			pm.P[y*w+x] = v
		}
	}
	return pm
}

func TestThresholdMonotonicity(t *testing.T) {
	pm := gradientWithVessels(256, 256)
	density := func(tau float64) float64 {
		a := NewAnalyzer()
		a.Threshold = tau
		res, err := a.Analyze(pm)
		require.NoError(t, err)
		return res.Descriptors.VesselDensity
	}

	d03, d05 := density(0.3), density(0.5)
	assert.GreaterOrEqual(t, d03, d05)
	assert.Greater(t, d03, 0.0)

	prev := math.Inf(1)
	for _, tau := range []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.99} {
		d := density(tau)
		assert.LessOrEqual(t, d, prev, "tau=%v", tau)
		prev = d
	}
}

func TestBinarize_StrictThreshold(t *testing.T) {
	pm, err := NewProbabilityMap(3, 1, []float64{0.3, 0.30001, 0.1})
	require.NoError(t, err)
	m := Binarize(pm, 0.3)
	assert.Equal(t, []bool{false, true, false}, m.Pix)
}

func TestClean_RemovesSpecksAndFillsGaps(t *testing.T) {
	speck := maskFrom(9, 9, [2]int{4, 4})
	assert.Zero(t, Clean(speck).Count())

	// A 3-pixel-thick bar with a one-pixel break at x=10.
	bar := NewMask(21, 7)
	for y := 2; y < 5; y++ {
		for x := 1; x < 20; x++ {
			if x != 10 {
				bar.Set(x, y, true)
			}
		}
	}
	cleaned := Clean(bar)
	assert.True(t, cleaned.At(10, 3), "gap should be closed")
	assert.Equal(t, 1, Label(cleaned).Count())
	assert.Equal(t, 2, Label(bar).Count())
}

func TestErode_ImageBorderDoesNotErode(t *testing.T) {
	m := NewMask(4, 4)
	for i := range m.Pix {
		m.Pix[i] = true
	}
	assert.Equal(t, 16, Erode(m).Count())
	assert.Equal(t, 16, Clean(m).Count())
}

func TestLabel_EightConnectivity(t *testing.T) {
	m := maskFrom(5, 5, [2]int{0, 0}, [2]int{1, 1}, [2]int{2, 2}, [2]int{4, 0})
	c := Label(m)
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, []int{3, 1}, c.Sizes)
	assert.Equal(t, 3, c.Largest())
	assert.Equal(t, []int{0, 6, 12}, c.Pixels(1))
}

func TestDistanceTransform(t *testing.T) {
	single := maskFrom(5, 5, [2]int{2, 2})
	dt := DistanceTransform(single)
	assert.Equal(t, 1.0, dt[12])
	assert.Zero(t, dt[0])

	full := NewMask(3, 3)
	for i := range full.Pix {
		full.Pix[i] = true
	}
	dt = DistanceTransform(full)
	assert.Equal(t, 2.0, dt[4], "centre is two pixels from the surrounding background")
	assert.Equal(t, 1.0, dt[0])

	block := rect(20, 20, 5, 5, 15, 15)
	dt = DistanceTransform(Binarize(block, 0.5))
	assert.InDelta(t, 5.0, dt[9*20+9], 1e-12)
	assert.InDelta(t, math.Sqrt(1), dt[5*20+5], 1e-12)
}

func TestSkeletonize_ThinsToCentreLine(t *testing.T) {
	m := Binarize(rect(60, 20, 5, 8, 55, 13), 0.5)
	sk := Skeletonize(m)
	require.Positive(t, sk.Count())
	assert.Less(t, sk.Count(), m.Count()/3)
	for i, v := range sk.Pix {
		if v {
			assert.True(t, m.Pix[i], "skeleton pixel %d outside mask", i)
		}
	}
	assert.Equal(t, 1, Label(sk).Count())
}

func TestAnalyze_StraightBand(t *testing.T) {
	res, err := NewAnalyzer().Analyze(rect(256, 256, 28, 126, 228, 131))
	require.NoError(t, err)
	d := res.Descriptors

	assert.Equal(t, 1.0, d.ComponentCount)
	// Opening with the cross rounds off the four corners.
	assert.InDelta(t, (200*5-4)/(256.0*256.0), d.VesselDensity, 1e-12)
	assert.InDelta(t, 1.0, d.TortuosityMean, 0.1)
	assert.InDelta(t, 0.0, d.TortuosityVariance, 0.01)
	assert.InDelta(t, 6.0, d.CaliberMax, 1e-9)
	assert.Greater(t, d.CaliberMean, 0.0)
	assert.Greater(t, d.EndPointDensity, 0.0)
	assert.Greater(t, d.SkeletonAreaRatio, 0.0)
	assert.Less(t, d.SkeletonAreaRatio, 1.0)
	assert.Greater(t, d.CentralDensity, d.PeripheralDensity)
}

func TestAnalyze_DiagonalBandIsStraight(t *testing.T) {
	const w = 256
	pm := Uniform(w, w, 0)
	for y := 40; y < 216; y++ {
		for x := 40; x < 216; x++ {
			if x-y >= -2 && x-y <= 2 {
				pm.P[y*w+x] = 1
			}
		}
	}
	res, err := NewAnalyzer().Analyze(pm)
	require.NoError(t, err)
	d := res.Descriptors

	assert.Equal(t, 1.0, d.ComponentCount)
	assert.InDelta(t, 1.0, d.TortuosityMean, 0.05)
}

func TestPathLength(t *testing.T) {
	const w = 32
	line := func(n, dx, dy int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = (2+i*dy)*w + 2 + i*dx
		}
		return out
	}
	tests := []struct {
		name   string
		pixels []int
		want   float64
	}{
		{"horizontal", line(11, 1, 0), 10},
		{"vertical", line(11, 0, 1), 10},
		{"diagonal", line(11, 1, 1), 10 * math.Sqrt2},
		// (0,0) (1,0) (1,1) (2,1) (2,2): the corners are cut.
		{"staircase", []int{0, 1, w + 1, w + 2, 2*w + 2}, 2 * math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, pathLength(tt.pixels, w), 1e-12)
		})
	}
}

func TestAnalyze_TwoComponents(t *testing.T) {
	pm := rect(128, 128, 10, 10, 30, 30)
	for y := 80; y < 90; y++ {
		for x := 80; x < 90; x++ {
			pm.P[y*128+x] = 1
		}
	}
	res, err := NewAnalyzer().Analyze(pm)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Descriptors.ComponentCount)
	assert.InDelta(t, 396.0/492.0, res.Descriptors.LargestComponentFraction, 1e-12)
}

func TestFractalDimension(t *testing.T) {
	line := NewMask(512, 512)
	for x := 0; x < 512; x++ {
		line.Set(x, 100, true)
	}
	assert.InDelta(t, 1.0, FractalDimension(line), 1e-9)
	assert.Zero(t, FractalDimension(NewMask(64, 64)))
}

func TestTextureVariance_UniformIsZero(t *testing.T) {
	pm := Uniform(32, 32, 0.7)
	m := Binarize(pm, 0.3)
	assert.InDelta(t, 0.0, textureVariance(pm, m, 15), 1e-12)

	pm.P[16*32+16] = 1
	assert.Greater(t, textureVariance(pm, m, 15), 0.0)
}

func TestDescriptors_NamesAndValidate(t *testing.T) {
	names := Names()
	require.Len(t, names, fundus.VesselDescriptorDim)
	assert.Equal(t, "vessel_density", names[0])
	assert.Equal(t, "texture_variance", names[14])
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}

	d := Descriptors{CaliberStd: math.NaN()}
	err := d.Validate()
	require.ErrorIs(t, err, fundus.ErrFeatureShape)
	assert.Contains(t, err.Error(), "caliber_std")
	assert.Len(t, d.Map(), fundus.VesselDescriptorDim)
}

func TestProbabilityMap_Validation(t *testing.T) {
	_, err := NewProbabilityMap(2, 2, []float64{0, 0, 0})
	assert.ErrorIs(t, err, fundus.ErrInvalidInput)
	_, err = NewProbabilityMap(1, 1, []float64{1.5})
	assert.ErrorIs(t, err, fundus.ErrInvalidInput)
	_, err = NewProbabilityMap(1, 1, []float64{math.NaN()})
	assert.ErrorIs(t, err, fundus.ErrInvalidInput)

	_, err = FromLogits(4, 4, make([]float32, 15))
	assert.ErrorIs(t, err, fundus.ErrFeatureShape)
	for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(-1))} {
		_, err = FromLogits(1, 2, []float32{0, bad})
		assert.ErrorIs(t, err, fundus.ErrFeatureShape)
		assert.NotErrorIs(t, err, fundus.ErrInvalidInput)
	}
	pm, err := FromLogits(1, 2, []float32{0, 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pm.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, pm.At(0, 1), 1e-12)
}

func TestAnalyzer_Validate(t *testing.T) {
	a := NewAnalyzer()
	require.NoError(t, a.Validate())
	a.Threshold = 1
	assert.Error(t, a.Validate())
	a = NewAnalyzer()
	a.TextureWindow = 14
	assert.Error(t, a.Validate())
}
