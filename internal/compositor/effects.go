package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"evermoment/internal/editor"
)

// Shadow is a fixed drop shadow. Blur follows the canvas convention where
// the gaussian standard deviation is half the blur value.
type Shadow struct {
	Color   color.NRGBA
	Blur    float64
	OffsetX float64
	OffsetY float64
}

func (s Shadow) sigma() float64 {
	return s.Blur / 2
}

// pad is the margin a blurred mask needs so the falloff is not cut off.
func (s Shadow) pad() int {
	return int(math.Ceil(s.sigma() * 3))
}

// ApplyAdjustments runs brightness, contrast and saturation over img in that order.
// Alpha is preserved.
func ApplyAdjustments(img image.Image, a editor.Adjustments) *image.NRGBA {
	if a.IsIdentity() {
		return imaging.Clone(img)
	}
	b, k, s := a.Brightness, a.Contrast, a.Saturation
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r := float64(c.R) / 255
		g := float64(c.G) / 255
		bl := float64(c.B) / 255

		r, g, bl = unit(r*b), unit(g*b), unit(bl*b)
		r, g, bl = unit((r-0.5)*k+0.5), unit((g-0.5)*k+0.5), unit((bl-0.5)*k+0.5)

		r, g, bl = unit((0.213+0.787*s)*r+(0.715-0.715*s)*g+(0.072-0.072*s)*bl),
			unit((0.213-0.213*s)*r+(0.715+0.285*s)*g+(0.072-0.072*s)*bl),
			unit((0.213-0.213*s)*r+(0.715-0.715*s)*g+(0.072+0.928*s)*bl)

		return color.NRGBA{R: to8(r), G: to8(g), B: to8(bl), A: c.A}
	})
}

func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func to8(v float64) uint8 {
	return uint8(v*255 + 0.5)
}

// shadowMask paints the alpha of img in the shadow color, padded and blurred.
// The returned image must be drawn pad pixels up and left of img's origin.
func shadowMask(img image.Image, s Shadow) (*image.NRGBA, int) {
	pad := s.pad()
	b := img.Bounds()
	mask := image.NewNRGBA(image.Rect(0, 0, b.Dx()+2*pad, b.Dy()+2*pad))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			i := mask.PixOffset(x-b.Min.X+pad, y-b.Min.Y+pad)
			mask.Pix[i+0] = s.Color.R
			mask.Pix[i+1] = s.Color.G
			mask.Pix[i+2] = s.Color.B
			mask.Pix[i+3] = uint8(uint32(s.Color.A) * (a >> 8) / 255)
		}
	}
	if s.sigma() <= 0 {
		return mask, pad
	}
	return imaging.Blur(mask, s.sigma()), pad
}
