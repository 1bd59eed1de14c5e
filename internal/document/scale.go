package document

import "math"

// Bounds limits how large an inserted picture may be drawn, in pixels.
type Bounds struct {
	MaxWidth  float64
	MaxHeight float64
	// WidthOnly scales to exactly MaxWidth and lets height follow.
	WidthOnly bool
}

// Standard bounds for the two document shapes.
var (
	SingleBounds = Bounds{MaxWidth: 300, MaxHeight: 200}
	BatchBounds  = Bounds{MaxWidth: 175, WidthOnly: true}
)

// QRDisplaySize is the edge length a scan code is drawn at.
const QRDisplaySize = 175

// Size is a fitted drawing size.
type Size struct {
	Width  int
	Height int
	Scale  float64
}

// Fit scales a w×h picture into b, preserving aspect ratio. Box bounds never
// enlarge a picture; the dimension that overflows most is shrunk first and
// the other is checked afterwards.
func (b Bounds) Fit(w, h int) Size {
	if w <= 0 || h <= 0 {
		return Size{Width: w, Height: h, Scale: 1}
	}
	fw, fh := float64(w), float64(h)
	s := 1.0

	switch {
	case b.WidthOnly && b.MaxWidth > 0:
		s = b.MaxWidth / fw
	default:
		maxW, maxH := b.MaxWidth, b.MaxHeight
		if maxW <= 0 {
			maxW = math.Inf(1)
		}
		if maxH <= 0 {
			maxH = math.Inf(1)
		}
		if fw/maxW >= fh/maxH {
			if fw*s > maxW {
				s = maxW / fw
			}
			if fh*s > maxH {
				s = maxH / fh
			}
		} else {
			if fh*s > maxH {
				s = maxH / fh
			}
			if fw*s > maxW {
				s = maxW / fw
			}
		}
	}
	return Size{
		Width:  int(math.Round(fw * s)),
		Height: int(math.Round(fh * s)),
		Scale:  s,
	}
}
