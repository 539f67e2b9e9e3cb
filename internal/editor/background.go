package editor

import "evermoment/internal/raster"

type BackgroundKind string

const (
	BackgroundNone     BackgroundKind = "none"
	BackgroundTemplate BackgroundKind = "template"
	BackgroundCustom   BackgroundKind = "custom"
)

// Background is the active background. It is always replaced as a whole.
type Background struct {
	Kind     BackgroundKind
	ImageRef string
	Raster   *raster.Handle
}

func NoBackground() Background {
	return Background{Kind: BackgroundNone}
}

func TemplateBackground(ref string, h *raster.Handle) Background {
	return Background{Kind: BackgroundTemplate, ImageRef: ref, Raster: h}
}

func CustomBackground(ref string, h *raster.Handle) Background {
	return Background{Kind: BackgroundCustom, ImageRef: ref, Raster: h}
}
