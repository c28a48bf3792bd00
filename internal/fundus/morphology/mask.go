package morphology

// Mask is a binary image, row-major. Stage functions never modify their
// input mask.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask returns an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{Width: m.Width, Height: m.Height, Pix: make([]bool, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// At reports whether (x, y) is foreground. Out-of-range coordinates are
// background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, v bool) { m.Pix[y*m.Width+x] = v }

// Area returns the total pixel count.
func (m *Mask) Area() int { return m.Width * m.Height }

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Density returns the foreground fraction.
func (m *Mask) Density() float64 {
	return ratio(float64(m.Count()), float64(m.Area()))
}

// cross is the 3x3 elliptical structuring element: the centre and its four
// edge neighbours.
var cross = [5][2]int{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Dilate grows the mask by the 3x3 cross.
func Dilate(m *Mask) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			for _, d := range cross {
				if m.At(x+d[0], y+d[1]) {
					out.Pix[y*m.Width+x] = true
					break
				}
			}
		}
	}
	return out
}

// Erode shrinks the mask by the 3x3 cross. Neighbours outside the image are
// ignored, so an all-foreground mask is left unchanged.
func Erode(m *Mask) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			keep := true
			for _, d := range cross {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				if !m.Pix[ny*m.Width+nx] {
					keep = false
					break
				}
			}
			out.Pix[y*m.Width+x] = keep
		}
	}
	return out
}

// Close fills one-pixel gaps: dilation followed by erosion.
func Close(m *Mask) *Mask { return Erode(Dilate(m)) }

// Open removes isolated specks: erosion followed by dilation.
func Open(m *Mask) *Mask { return Dilate(Erode(m)) }

// Clean applies a single closing then a single opening pass.
func Clean(m *Mask) *Mask { return Open(Close(m)) }

// neighbours8 lists the 8-connected offsets in clockwise order starting north.
var neighbours8 = [8][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}

// neighbourCount returns how many of the 8 neighbours of (x, y) are set.
func neighbourCount(m *Mask, x, y int) int {
	n := 0
	for _, d := range neighbours8 {
		if m.At(x+d[0], y+d[1]) {
			n++
		}
	}
	return n
}

// ratio divides, defining an undefined ratio as 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
