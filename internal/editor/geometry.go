package editor

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// CoverRect scales a srcW×srcH image so it fills dstW×dstH without distortion.
// A source wider than the destination ratio matches the height and is centered
// horizontally; otherwise it matches the width and is centered vertically.
func CoverRect(srcW, srcH, dstW, dstH float64) Rect {
	imgRatio := srcW / srcH
	dstRatio := dstW / dstH
	if imgRatio > dstRatio {
		w := dstH * imgRatio
		return Rect{X: (dstW - w) / 2, Y: 0, W: w, H: dstH}
	}
	h := dstW / imgRatio
	return Rect{X: 0, Y: (dstH - h) / 2, W: dstW, H: h}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
