package morphology

// Components is the 8-connected labelling of a mask. Labels holds 0 for
// background and 1..len(Sizes) for foreground pixels.
type Components struct {
	Width  int
	Height int
	Labels []int32
	Sizes  []int
}

// Count returns the number of components.
func (c *Components) Count() int { return len(c.Sizes) }

// Largest returns the pixel count of the biggest component, or 0.
func (c *Components) Largest() int {
	best := 0
	for _, s := range c.Sizes {
		if s > best {
			best = s
		}
	}
	return best
}

// Pixels returns the flat indices belonging to label l, in scan order.
func (c *Components) Pixels(l int32) []int {
	var out []int
	for i, v := range c.Labels {
		if v == l {
			out = append(out, i)
		}
	}
	return out
}

// Label finds 8-connected foreground components with a depth-first flood
// fill over an explicit stack. Labels are assigned in raster order of each
// component's first pixel.
func Label(m *Mask) *Components {
	c := &Components{Width: m.Width, Height: m.Height, Labels: make([]int32, len(m.Pix))}
	stack := make([]int, 0, 256)
	for start, fg := range m.Pix {
		if !fg || c.Labels[start] != 0 {
			continue
		}
		id := int32(len(c.Sizes) + 1)
		size := 0
		c.Labels[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			x, y := i%m.Width, i/m.Width
			for _, d := range neighbours8 {
				nx, ny := x+d[0], y+d[1]
				if !m.At(nx, ny) {
					continue
				}
				j := ny*m.Width + nx
				if c.Labels[j] == 0 {
					c.Labels[j] = id
					stack = append(stack, j)
				}
			}
		}
		c.Sizes = append(c.Sizes, size)
	}
	return c
}
