// Package compositor renders an editor scene into the final raster in three
// layers: background, subject, then the text overlay.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"evermoment/internal/editor"
)

// Layout constants of the overlay layer, in canvas units.
const (
	overlayPadding    = 45.0
	subtitleOffset    = 45.0
	headerY           = 160.0
	footerBottomInset = 100.0
	watermarkSpacing  = 200.0
	watermarkMinLines = 8
)

var (
	gradientTop    = MustColor("#003366")
	gradientBottom = MustColor("#001a33")

	subjectShadow  = Shadow{Color: MustColor("rgba(0, 0, 0, 0.35)"), Blur: 30, OffsetX: 8, OffsetY: 15}
	brandingShadow = Shadow{Color: MustColor("rgba(0, 0, 0, 0.5)"), Blur: 15, OffsetX: 2, OffsetY: 2}
	captionShadow  = Shadow{Color: MustColor("rgba(0, 0, 0, 0.6)"), Blur: 12, OffsetX: 2, OffsetY: 2}
	creditShadow   = Shadow{Color: MustColor("rgba(0, 0, 0, 0.3)"), Blur: 4}
)

type Compositor struct {
	cfg   editor.Config
	fonts *FontBook

	watermarkColor color.NRGBA
	logoColor      color.NRGBA
	subColor       color.NRGBA
	creditColor    color.NRGBA
}

// New checks every configured color once so Render cannot fail on them.
func New(cfg editor.Config, fonts *FontBook) (*Compositor, error) {
	c := &Compositor{cfg: cfg, fonts: fonts}
	for _, p := range []struct {
		dst *color.NRGBA
		src string
	}{
		{&c.watermarkColor, cfg.Watermark.Style.Color},
		{&c.logoColor, cfg.Branding.LogoFont.Color},
		{&c.subColor, cfg.Branding.SubFont.Color},
		{&c.creditColor, cfg.Branding.CredFont.Color},
	} {
		col, err := ParseColor(p.src)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay color: %w", err)
		}
		*p.dst = col
	}
	return c, nil
}

// Render draws scene onto a fresh canvas. It keeps no state between calls.
func (c *Compositor) Render(scene editor.Scene) (*image.RGBA, error) {
	dc := gg.NewContext(scene.Canvas.Width, scene.Canvas.Height)
	faces := c.fonts.newFaceCache()
	defer faces.close()

	c.drawBackground(dc, scene)
	c.drawSubject(dc, scene)
	if err := c.drawOverlay(dc, scene, faces); err != nil {
		return nil, err
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected canvas type %T", dc.Image())
	}
	return img, nil
}

func (c *Compositor) drawBackground(dc *gg.Context, scene editor.Scene) {
	w, h := float64(scene.Canvas.Width), float64(scene.Canvas.Height)
	bg := scene.Background
	if bg.Kind == editor.BackgroundNone || bg.Raster == nil {
		grad := gg.NewLinearGradient(0, 0, 0, h)
		grad.AddColorStop(0, gradientTop)
		grad.AddColorStop(1, gradientBottom)
		dc.SetFillStyle(grad)
		dc.DrawRectangle(0, 0, w, h)
		dc.Fill()
		return
	}

	r := editor.CoverRect(float64(bg.Raster.Width()), float64(bg.Raster.Height()), w, h)
	part, placed, ok := visiblePart(bg.Raster.Image(), r, editor.Rect{W: w, H: h})
	if !ok {
		return
	}
	x, y, pw, ph := pixelCover(placed)
	scaled := imaging.Resize(part, pw, ph, imaging.CatmullRom)
	dc.DrawImage(scaled, x, y)
}

// visiblePart crops src, drawn scaled into r, to the whole source pixels that
// land inside clip. It returns the crop and where it goes on the canvas.
func visiblePart(src image.Image, r, clip editor.Rect) (image.Image, editor.Rect, bool) {
	b := src.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if sw == 0 || sh == 0 || r.W <= 0 || r.H <= 0 {
		return nil, editor.Rect{}, false
	}
	kx, ky := r.W/sw, r.H/sh
	x0 := int(bound(math.Floor((clip.X-r.X)/kx), 0, sw))
	y0 := int(bound(math.Floor((clip.Y-r.Y)/ky), 0, sh))
	x1 := int(bound(math.Ceil((clip.X+clip.W-r.X)/kx), 0, sw))
	y1 := int(bound(math.Ceil((clip.Y+clip.H-r.Y)/ky), 0, sh))
	if x1 <= x0 || y1 <= y0 {
		return nil, editor.Rect{}, false
	}
	placed := editor.Rect{
		X: r.X + float64(x0)*kx,
		Y: r.Y + float64(y0)*ky,
		W: float64(x1-x0) * kx,
		H: float64(y1-y0) * ky,
	}
	if x0 == 0 && y0 == 0 && x1 == b.Dx() && y1 == b.Dy() {
		return src, placed, true
	}
	return imaging.Crop(src, image.Rect(x0, y0, x1, y1).Add(b.Min)), placed, true
}

func bound(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// pixelCover widens a float rectangle to whole pixels so no canvas edge is left unpainted.
func pixelCover(r editor.Rect) (x, y, w, h int) {
	x = int(math.Floor(r.X))
	y = int(math.Floor(r.Y))
	w = int(math.Ceil(r.X+r.W)) - x
	h = int(math.Ceil(r.Y+r.H)) - y
	return x, y, w, h
}

func (c *Compositor) drawSubject(dc *gg.Context, scene editor.Scene) {
	s := scene.Subject
	if !s.Present() {
		return
	}
	// parts off canvas still cast shadow onto it from up to this far out
	margin := float64(subjectShadow.pad()) + math.Max(math.Abs(subjectShadow.OffsetX), math.Abs(subjectShadow.OffsetY))
	clip := editor.Rect{
		X: -margin,
		Y: -margin,
		W: float64(scene.Canvas.Width) + 2*margin,
		H: float64(scene.Canvas.Height) + 2*margin,
	}
	part, box, ok := visiblePart(s.Raster.Image(), s.Bounds(), clip)
	if !ok {
		return
	}
	w := int(math.Round(box.W))
	h := int(math.Round(box.H))
	if w < 1 || h < 1 {
		return
	}

	scaled := imaging.Resize(part, w, h, imaging.Lanczos)
	filtered := ApplyAdjustments(scaled, scene.Adjustments)
	x := int(math.Round(box.X))
	y := int(math.Round(box.Y))

	mask, pad := shadowMask(filtered, subjectShadow)
	dc.DrawImage(mask, x-pad+int(subjectShadow.OffsetX), y-pad+int(subjectShadow.OffsetY))
	dc.DrawImage(filtered, x, y)
}

type textRun struct {
	text   string
	face   font.Face
	color  color.Color
	x, y   float64
	ax, ay float64
	shadow *Shadow
}

func (c *Compositor) drawOverlay(dc *gg.Context, scene editor.Scene, faces *faceCache) error {
	w, h := float64(scene.Canvas.Width), float64(scene.Canvas.Height)
	b := c.cfg.Branding

	logoFace, err := faces.face(b.LogoFont.Family, b.LogoFont.Size, b.LogoFont.Bold)
	if err != nil {
		return err
	}
	subFace, err := faces.face(b.SubFont.Family, b.SubFont.Size, b.SubFont.Bold)
	if err != nil {
		return err
	}
	c.drawText(dc, textRun{text: b.Logo, face: logoFace, color: c.logoColor,
		x: overlayPadding, y: overlayPadding, ay: 1, shadow: &brandingShadow})
	c.drawText(dc, textRun{text: b.Subtitle, face: subFace, color: c.subColor,
		x: overlayPadding, y: overlayPadding + subtitleOffset, ay: 1, shadow: &brandingShadow})

	captions := []struct {
		overlay editor.TextOverlay
		y, ay   float64
	}{
		{scene.Header, headerY, 1},
		{scene.Footer, h - footerBottomInset, 0},
	}
	for _, cp := range captions {
		if cp.overlay.Text == "" {
			continue
		}
		face, err := faces.face(cp.overlay.FontFamily, float64(cp.overlay.PixelSize), true)
		if err != nil {
			return err
		}
		col, err := ParseColor(cp.overlay.Color)
		if err != nil {
			col = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		c.drawText(dc, textRun{text: cp.overlay.Text, face: face, color: col,
			x: w / 2, y: cp.y, ax: 0.5, ay: cp.ay, shadow: &captionShadow})
	}

	if err := c.drawWatermark(dc, w, h, faces); err != nil {
		return err
	}

	credFace, err := faces.face(b.CredFont.Family, b.CredFont.Size, b.CredFont.Bold)
	if err != nil {
		return err
	}
	c.drawText(dc, textRun{text: b.Credit, face: credFace, color: c.creditColor,
		x: w - overlayPadding, y: h - overlayPadding, ax: 1, ay: 0, shadow: &creditShadow})
	return nil
}

// WatermarkLines is how many lines on each side of the center line are needed
// to cover the canvas diagonal.
func WatermarkLines(w, h float64) int {
	n := int(math.Ceil(math.Hypot(w, h) / 2 / watermarkSpacing))
	return max(n, watermarkMinLines)
}

func (c *Compositor) drawWatermark(dc *gg.Context, w, h float64, faces *faceCache) error {
	wm := c.cfg.Watermark
	if wm.Text == "" {
		return nil
	}
	face, err := faces.face(wm.Style.Family, wm.Style.Size, wm.Style.Bold)
	if err != nil {
		return err
	}
	dc.Push()
	defer dc.Pop()
	dc.RotateAbout(gg.Radians(-45), w/2, h/2)
	dc.SetFontFace(face)
	dc.SetColor(c.watermarkColor)
	n := WatermarkLines(w, h)
	for i := -n; i <= n; i++ {
		dc.DrawStringAnchored(wm.Text, w/2, h/2+float64(i)*watermarkSpacing, 0.5, 0.5)
	}
	return nil
}

// drawText draws one line anchored like gg.DrawStringAnchored, with an optional blurred shadow under it.
func (c *Compositor) drawText(dc *gg.Context, t textRun) {
	if t.text == "" {
		return
	}
	dc.SetFontFace(t.face)
	if t.shadow != nil {
		c.drawTextShadow(dc, t)
	}
	dc.SetColor(t.color)
	dc.DrawStringAnchored(t.text, t.x, t.y, t.ax, t.ay)
}

// drawTextShadow renders the text on a small layer in the shadow color, blurs it
// and places it at the shadow offset. dc must already carry t.face.
func (c *Compositor) drawTextShadow(dc *gg.Context, t textRun) {
	tw, th := dc.MeasureString(t.text)
	pad := float64(t.shadow.pad()) + 2
	left := t.x - t.ax*tw
	baseline := t.y + t.ay*th

	layer := gg.NewContext(int(math.Ceil(tw+2*pad)), int(math.Ceil(2*th+2*pad)))
	layer.SetFontFace(t.face)
	layer.SetColor(t.shadow.Color)
	layer.DrawString(t.text, pad, pad+th)

	var img image.Image = layer.Image()
	if t.shadow.sigma() > 0 {
		img = imaging.Blur(img, t.shadow.sigma())
	}
	dc.DrawImage(img,
		int(math.Round(left-pad+t.shadow.OffsetX)),
		int(math.Round(baseline-pad-th+t.shadow.OffsetY)))
}
