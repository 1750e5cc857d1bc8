package vectorize

import "github.com/openroads/road-extractor/internal/mask"

// Skeletonize thins the foreground of b to 1-pixel-wide centerlines using the
// Zhang-Suen two sub-iteration scheme. b is not modified.
func Skeletonize(b *mask.Binary) *mask.Binary {
	out := &mask.Binary{Width: b.Width, Height: b.Height, Pix: append([]bool(nil), b.Pix...)}

	var marked []int
	for {
		changed := false
		for step := 0; step < 2; step++ {
			marked = marked[:0]
			for row := 0; row < out.Height; row++ {
				for col := 0; col < out.Width; col++ {
					if out.At(row, col) && removable(out, row, col, step) {
						marked = append(marked, row*out.Width+col)
					}
				}
			}
			for _, idx := range marked {
				out.Pix[idx] = false
			}
			if len(marked) > 0 {
				changed = true
			}
		}
		if !changed {
			return out
		}
	}
}

func removable(b *mask.Binary, row, col, step int) bool {
	// P2..P9 clockwise starting north
	p := [8]bool{
		b.At(row-1, col),
		b.At(row-1, col+1),
		b.At(row, col+1),
		b.At(row+1, col+1),
		b.At(row+1, col),
		b.At(row+1, col-1),
		b.At(row, col-1),
		b.At(row-1, col-1),
	}

	neighbours := 0
	transitions := 0
	for i := 0; i < 8; i++ {
		if p[i] {
			neighbours++
		}
		if !p[i] && p[(i+1)%8] {
			transitions++
		}
	}
	if neighbours < 2 || neighbours > 6 || transitions != 1 {
		return false
	}

	n, e, s, w := p[0], p[2], p[4], p[6]
	if step == 0 {
		return !(n && e && s) && !(e && s && w)
	}
	return !(n && e && w) && !(n && s && w)
}
