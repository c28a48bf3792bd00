package morphology

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Analyzer defaults.
const (
	DefaultDegenerateFraction = 1e-4
	DefaultTextureWindow      = 15
	DefaultMinBranchLength    = 20
	DefaultMinChordLength     = 10.0
)

// boxSizes are the box-counting scales, in pixels.
var boxSizes = []int{4, 8, 16, 32, 64}

// Analyzer turns a probability map into vessel descriptors. The zero value is
// not usable; start from NewAnalyzer.
type Analyzer struct {
	Threshold          float64 // binarisation cut-off, strictly-greater-than
	DegenerateFraction float64 // foreground fraction below which a mask is degenerate
	TextureWindow      int     // side of the local variance window (odd)
	MinBranchLength    int     // skeleton branches shorter than this are ignored
	MinChordLength     float64 // branches with a shorter chord are ignored
}

// NewAnalyzer returns an Analyzer with the production constants.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		Threshold:          DefaultThreshold,
		DegenerateFraction: DefaultDegenerateFraction,
		TextureWindow:      DefaultTextureWindow,
		MinBranchLength:    DefaultMinBranchLength,
		MinChordLength:     DefaultMinChordLength,
	}
}

// Validate checks the analyzer parameters.
func (a *Analyzer) Validate() error {
	if !(a.Threshold > 0 && a.Threshold < 1) {
		return fmt.Errorf("vessel threshold %v must be in (0,1)", a.Threshold)
	}
	if a.DegenerateFraction < 0 || a.DegenerateFraction >= 1 {
		return fmt.Errorf("degenerate mask fraction %v must be in [0,1)", a.DegenerateFraction)
	}
	if a.TextureWindow < 1 || a.TextureWindow%2 == 0 {
		return fmt.Errorf("texture window %d must be a positive odd number", a.TextureWindow)
	}
	if a.MinBranchLength < 2 || a.MinChordLength <= 0 {
		return fmt.Errorf("branch filter (%d px, chord %v) must be positive", a.MinBranchLength, a.MinChordLength)
	}
	return nil
}

// Analysis is the result of one Analyze call.
type Analysis struct {
	Mask        *Mask
	Skeleton    *Mask
	Descriptors Descriptors
	Foreground  int
	Degenerate  bool
}

// Mask binarises and cleans the probability map.
func (a *Analyzer) Mask(pm *ProbabilityMap) *Mask {
	return Clean(Binarize(pm, a.Threshold))
}

// Analyze runs the full stage chain and checks every descriptor is finite.
func (a *Analyzer) Analyze(pm *ProbabilityMap) (*Analysis, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if len(pm.P) != pm.Width*pm.Height || len(pm.P) == 0 {
		return nil, fmt.Errorf("probability map has %d values for %dx%d", len(pm.P), pm.Width, pm.Height)
	}
	m := a.Mask(pm)
	sk := Skeletonize(m)
	d := a.Describe(pm, m, sk)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	fg := m.Count()
	return &Analysis{
		Mask:        m,
		Skeleton:    sk,
		Descriptors: d,
		Foreground:  fg,
		Degenerate:  fg == 0 || float64(fg)/float64(m.Area()) < a.DegenerateFraction,
	}, nil
}

// Describe computes the descriptors from a cleaned mask, its skeleton and the
// probability map they came from.
func (a *Analyzer) Describe(pm *ProbabilityMap, m, skeleton *Mask) Descriptors {
	var d Descriptors
	fg := float64(m.Count())
	area := float64(m.Area())

	d.VesselDensity, d.PeripheralDensity, d.CentralDensity = regionDensities(m)

	comps := Label(m)
	d.ComponentCount = float64(comps.Count())
	d.LargestComponentFraction = ratio(float64(comps.Largest()), fg)
	d.SkeletonAreaRatio = ratio(float64(skeleton.Count()), fg)

	ts := a.branchTortuosities(skeleton)
	if len(ts) > 0 {
		d.TortuosityMean, d.TortuosityVariance = stat.PopMeanVariance(ts, nil)
	}

	if widths := calibers(m, skeleton); len(widths) > 0 {
		d.CaliberMean, d.CaliberStd = stat.PopMeanStdDev(widths, nil)
		d.CaliberMax = floats.Max(widths)
	}

	d.FractalDimension = FractalDimension(m)
	branches, ends := skeletonPoints(skeleton)
	d.BranchPointDensity = ratio(float64(branches), area)
	d.EndPointDensity = ratio(float64(ends), area)

	d.TextureVariance = textureVariance(pm, m, a.TextureWindow)
	return d
}

// regionDensities splits the image at radius min(H,W)/3 around the centre.
func regionDensities(m *Mask) (overall, peripheral, central float64) {
	cx, cy := m.Width/2, m.Height/2
	r := min(m.Width, m.Height) / 3
	r2 := r * r
	var fg, inFG, inN, outFG, outN int
	for y := 0; y < m.Height; y++ {
		dy := y - cy
		for x := 0; x < m.Width; x++ {
			dx := x - cx
			v := m.Pix[y*m.Width+x]
			if v {
				fg++
			}
			if dx*dx+dy*dy > r2 {
				outN++
				if v {
					outFG++
				}
			} else {
				inN++
				if v {
					inFG++
				}
			}
		}
	}
	return ratio(float64(fg), float64(m.Area())),
		ratio(float64(outFG), float64(outN)),
		ratio(float64(inFG), float64(inN))
}

// branchTortuosities splits the skeleton at junctions and returns arc/chord
// for each branch long enough to measure. Arc length is the 8-connected path
// length; chord is the extent along the branch's principal axis.
func (a *Analyzer) branchTortuosities(skeleton *Mask) []float64 {
	branches := skeleton.Clone()
	for i, v := range skeleton.Pix {
		if v && neighbourCount(skeleton, i%skeleton.Width, i/skeleton.Width) >= 3 {
			branches.Pix[i] = false
		}
	}
	comps := Label(branches)

	var out []float64
	for l, size := range comps.Sizes {
		if size < a.MinBranchLength {
			continue
		}
		pixels := comps.Pixels(int32(l + 1))
		chord := principalExtent(pixels, skeleton.Width)
		if chord > a.MinChordLength {
			out = append(out, pathLength(pixels, skeleton.Width)/chord)
		}
	}
	return out
}

// pathLength walks a branch from one of its end points and sums the step
// lengths, 1 for axial and √2 for diagonal steps. Diagonal steps are taken
// over axial ones, and the corner pixel a diagonal step cuts is not revisited.
func pathLength(pixels []int, width int) float64 {
	member := make(map[int]bool, len(pixels))
	for _, i := range pixels {
		member[i] = true
	}
	neighbours := func(i int) []int {
		x, y := i%width, i/width
		var out []int
		for _, d := range neighbours8 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= width || ny < 0 {
				continue
			}
			if j := ny*width + nx; member[j] {
				out = append(out, j)
			}
		}
		return out
	}

	cur := pixels[0]
	for _, i := range pixels {
		if len(neighbours(i)) == 1 {
			cur = i
			break
		}
	}
	visited := map[int]bool{cur: true}
	var length float64
	for {
		next, diagonal := -1, false
		for _, j := range neighbours(cur) {
			if visited[j] {
				continue
			}
			d := j%width != cur%width && j/width != cur/width
			if next == -1 || (d && !diagonal) {
				next, diagonal = j, d
			}
		}
		if next == -1 {
			return length
		}
		for _, j := range neighbours(cur) {
			visited[j] = true
		}
		if diagonal {
			length += math.Sqrt2
		} else {
			length++
		}
		cur = next
	}
}

// principalExtent projects pixel coordinates onto their first principal
// component and returns max-min.
func principalExtent(pixels []int, width int) float64 {
	coords := mat.NewDense(len(pixels), 2, nil)
	for r, i := range pixels {
		coords.Set(r, 0, float64(i%width))
		coords.Set(r, 1, float64(i/width))
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, coords, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return 0
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues are ascending, so the principal axis is the last column.
	ax, ay := vecs.At(0, 1), vecs.At(1, 1)

	lo, hi := math.Inf(1), math.Inf(-1)
	for r := range pixels {
		p := coords.At(r, 0)*ax + coords.At(r, 1)*ay
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return hi - lo
}

// calibers returns the local vessel width, twice the distance to background,
// sampled at every skeleton pixel.
func calibers(m, skeleton *Mask) []float64 {
	n := skeleton.Count()
	if n == 0 {
		return nil
	}
	dt := DistanceTransform(m)
	out := make([]float64, 0, n)
	for i, v := range skeleton.Pix {
		if v {
			out = append(out, 2*dt[i])
		}
	}
	return out
}

// FractalDimension estimates the box-counting dimension of the mask. Counting
// stops at the first empty scale and fewer than three scales yield 0.
func FractalDimension(m *Mask) float64 {
	var logS, logN []float64
	for _, s := range boxSizes {
		n := boxCount(m, s)
		if n == 0 {
			break
		}
		logS = append(logS, math.Log(float64(s)))
		logN = append(logN, math.Log(float64(n)))
	}
	if len(logN) < 3 {
		return 0
	}
	_, slope := stat.LinearRegression(logS, logN, nil, false)
	return -slope
}

func boxCount(m *Mask, size int) int {
	count := 0
	for by := 0; by < m.Height; by += size {
		for bx := 0; bx < m.Width; bx += size {
			if boxOccupied(m, bx, by, size) {
				count++
			}
		}
	}
	return count
}

func boxOccupied(m *Mask, bx, by, size int) bool {
	for y := by; y < min(by+size, m.Height); y++ {
		row := m.Pix[y*m.Width:]
		for x := bx; x < min(bx+size, m.Width); x++ {
			if row[x] {
				return true
			}
		}
	}
	return false
}

// skeletonPoints counts junctions (three or more skeleton neighbours) and end
// points (exactly one).
func skeletonPoints(skeleton *Mask) (branches, ends int) {
	for i, v := range skeleton.Pix {
		if !v {
			continue
		}
		switch n := neighbourCount(skeleton, i%skeleton.Width, i/skeleton.Width); {
		case n >= 3:
			branches++
		case n == 1:
			ends++
		}
	}
	return branches, ends
}

// textureVariance averages the local variance of P over mask pixels. The
// window is clipped at the image border.
func textureVariance(pm *ProbabilityMap, m *Mask, window int) float64 {
	fg := m.Count()
	if fg == 0 {
		return 0
	}
	w, h := pm.Width, pm.Height
	sum, sq := integral(pm.P, w, h, false), integral(pm.P, w, h, true)
	half := window / 2
	var total float64
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := 0; x < w; x++ {
			if !m.Pix[y*w+x] {
				continue
			}
			x0, x1 := max(0, x-half), min(w, x+half+1)
			n := float64((y1 - y0) * (x1 - x0))
			mean := boxSum(sum, w, x0, y0, x1, y1) / n
			v := boxSum(sq, w, x0, y0, x1, y1)/n - mean*mean
			if v > 0 {
				total += v
			}
		}
	}
	return total / float64(fg)
}

// integral builds a (w+1)x(h+1) summed-area table of p or p².
func integral(p []float64, w, h int, squared bool) []float64 {
	s := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			v := p[y*w+x]
			if squared {
				v *= v
			}
			row += v
			s[(y+1)*(w+1)+x+1] = s[y*(w+1)+x+1] + row
		}
	}
	return s
}

func boxSum(s []float64, w, x0, y0, x1, y1 int) float64 {
	stride := w + 1
	return s[y1*stride+x1] - s[y0*stride+x1] - s[y1*stride+x0] + s[y0*stride+x0]
}
