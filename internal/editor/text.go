package editor

import (
	"strconv"
	"strings"
)

// TextOverlay is one user-editable caption (header or footer).
type TextOverlay struct {
	Text       string `json:"text"`
	FontFamily string `json:"fontFamily"`
	PixelSize  int    `json:"pixelSize"`
	Color      string `json:"color"`
}

type TextSlot string

const (
	Header TextSlot = "header"
	Footer TextSlot = "footer"
)

func ParseTextSlot(s string) (TextSlot, error) {
	switch TextSlot(s) {
	case Header, Footer:
		return TextSlot(s), nil
	}
	return "", invalid("slot", "unknown text slot %q", s)
}

func DefaultTextOverlay(cfg Config) TextOverlay {
	return TextOverlay{
		FontFamily: cfg.Fonts[0].Family,
		PixelSize:  DefaultTextSize,
		Color:      cfg.TextColors[0].Color,
	}
}

// TruncateText cuts s to MaxTextLength characters.
func TruncateText(s string) string {
	r := []rune(s)
	if len(r) <= MaxTextLength {
		return s
	}
	return string(r[:MaxTextLength])
}

// ClampTextSize bounds a pixel size to [MinTextSize, MaxTextSize].
func ClampTextSize(n int) int {
	return min(MaxTextSize, max(MinTextSize, n))
}

// ParseTextSize reads a size typed by the user, falling back to the default
// on anything that is not an integer.
func ParseTextSize(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		n = DefaultTextSize
	}
	return ClampTextSize(n)
}

// TextPatch carries optional updates. Font and Color accept a configured id,
// a configured value, or for Color any #RRGGBB.
type TextPatch struct {
	Text  *string `json:"text,omitempty"`
	Font  *string `json:"font,omitempty"`
	Size  *int    `json:"size,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (t TextOverlay) apply(cfg Config, p TextPatch) (TextOverlay, error) {
	next := t
	if p.Font != nil {
		f, ok := cfg.fontByKey(*p.Font)
		if !ok {
			return t, invalid("font", "unknown font %q", *p.Font)
		}
		next.FontFamily = f.Family
	}
	if p.Color != nil {
		c, ok := cfg.colorByKey(*p.Color)
		if !ok {
			return t, invalid("color", "unknown color %q", *p.Color)
		}
		next.Color = c
	}
	if p.Size != nil {
		next.PixelSize = ClampTextSize(*p.Size)
	}
	if p.Text != nil {
		next.Text = TruncateText(*p.Text)
	}
	return next, nil
}
