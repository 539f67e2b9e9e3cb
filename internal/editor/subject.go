package editor

import (
	"math"

	"evermoment/internal/raster"
)

// Subject is the background-free photo placed on the canvas.
// Position is the center of its box.
type Subject struct {
	Raster          *raster.Handle
	Position        Point
	Scale           float64
	IntrinsicWidth  float64
	IntrinsicHeight float64
}

func newSubject(cfg Config) Subject {
	return Subject{
		Position: canvasCenter(cfg.Canvas),
		Scale:    cfg.Subject.Default,
	}
}

func canvasCenter(c Canvas) Point {
	return Point{X: float64(c.Width) / 2, Y: float64(c.Height) / 2}
}

// Bounds is the scaled box centered at Position.
func (s Subject) Bounds() Rect {
	w := s.IntrinsicWidth * s.Scale
	h := s.IntrinsicHeight * s.Scale
	return Rect{X: s.Position.X - w/2, Y: s.Position.Y - h/2, W: w, H: h}
}

// Present reports whether a processed raster is attached.
func (s Subject) Present() bool {
	return s.Raster != nil
}

// InitialScale picks the largest scale that keeps the subject within
// InitialFitRatio of the larger canvas side, never above the default scale.
func InitialScale(cfg Config, rasterWidth, rasterHeight int) float64 {
	maxDim := math.Max(float64(cfg.Canvas.Width), float64(cfg.Canvas.Height)) * InitialFitRatio
	imgMaxDim := math.Max(float64(rasterWidth), float64(rasterHeight))
	return math.Min(maxDim/imgMaxDim, cfg.Subject.Default)
}

// fitInitial sizes and centers a freshly processed subject.
func (s *Subject) fitInitial(cfg Config, h *raster.Handle) {
	s.Raster = h
	s.IntrinsicWidth = float64(h.Width())
	s.IntrinsicHeight = float64(h.Height())
	s.Scale = InitialScale(cfg, h.Width(), h.Height())
	s.Position = canvasCenter(cfg.Canvas)
}

func (s *Subject) setScale(limits ScaleLimits, v float64) {
	s.Scale = clamp(v, limits.Min, limits.Max)
}

// reset restores placement but keeps the raster.
func (s *Subject) reset(cfg Config) {
	s.Position = canvasCenter(cfg.Canvas)
	s.Scale = cfg.Subject.Default
}
