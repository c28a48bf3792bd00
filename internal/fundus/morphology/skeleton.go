package morphology

// Skeletonize thins the mask to one-pixel-wide centre lines using the
// Zhang-Suen algorithm. Pixels outside the image count as background.
func Skeletonize(m *Mask) *Mask {
	sk := m.Clone()
	live := make([]int, 0, m.Count())
	for i, v := range m.Pix {
		if v {
			live = append(live, i)
		}
	}

	var remove []int
	for {
		changed := false
		for pass := 0; pass < 2; pass++ {
			remove = remove[:0]
			for _, i := range live {
				if zhangSuenDeletable(sk, i%m.Width, i/m.Width, pass) {
					remove = append(remove, i)
				}
			}
			for _, i := range remove {
				sk.Pix[i] = false
			}
			if len(remove) > 0 {
				changed = true
				kept := live[:0]
				for _, i := range live {
					if sk.Pix[i] {
						kept = append(kept, i)
					}
				}
				live = kept
			}
		}
		if !changed {
			return sk
		}
	}
}

// zhangSuenDeletable evaluates the sub-iteration conditions for (x, y).
// Neighbours are P2..P9 clockwise from north.
func zhangSuenDeletable(m *Mask, x, y, pass int) bool {
	var p [8]bool
	b := 0
	for k, d := range neighbours8 {
		p[k] = m.At(x+d[0], y+d[1])
		if p[k] {
			b++
		}
	}
	if b < 2 || b > 6 {
		return false
	}
	a := 0
	for k := 0; k < 8; k++ {
		if !p[k] && p[(k+1)%8] {
			a++
		}
	}
	if a != 1 {
		return false
	}
	// p[0]=P2 (N), p[2]=P4 (E), p[4]=P6 (S), p[6]=P8 (W)
	if pass == 0 {
		return !(p[0] && p[2] && p[4]) && !(p[2] && p[4] && p[6])
	}
	return !(p[0] && p[2] && p[6]) && !(p[0] && p[4] && p[6])
}
