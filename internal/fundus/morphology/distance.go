package morphology

import "math"

// DistanceTransform returns, for every foreground pixel, the Euclidean
// distance to the nearest background pixel (0 on background). The image is
// treated as surrounded by background, so every value is finite.
//
// Exact separable transform after Felzenszwalb and Huttenlocher: a 1-D lower
// envelope of parabolas over columns, then over rows, on a one-pixel padded
// grid.
func DistanceTransform(m *Mask) []float64 {
	w, h := m.Width+2, m.Height+2
	inf := float64(w*w + h*h)
	grid := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.At(x-1, y-1) {
				grid[y*w+x] = inf
			}
		}
	}

	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = grid[y*w+x]
		}
		edt1D(f[:h], d[:h], v, z)
		for y := 0; y < h; y++ {
			grid[y*w+x] = d[y]
		}
	}
	for y := 0; y < h; y++ {
		copy(f[:w], grid[y*w:(y+1)*w])
		edt1D(f[:w], d[:w], v, z)
		copy(grid[y*w:(y+1)*w], d[:w])
	}

	out := make([]float64, m.Width*m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			out[y*m.Width+x] = math.Sqrt(grid[(y+1)*w+x+1])
		}
	}
	return out
}

// edt1D writes the squared distance transform of sampled function f into d.
func edt1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2 * (fq - fp))
}
