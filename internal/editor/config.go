// Package editor holds the per-session editing state of a composite and the
// operations that mutate it: subject placement, image adjustments, text overlays,
// background selection and pointer dragging.
package editor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Canvas is the fixed output raster size. All positions are expressed in it.
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type ScaleLimits struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Font is a selectable text font. Family follows the CSS font-family list syntax
// ("Playfair Display, serif"); Path optionally points at a TTF/OTF file for the first family.
type Font struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Family string `json:"family"`
	Path   string `json:"path,omitempty"`
}

type TextColor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TextStyle describes fixed, non user-configurable text.
type TextStyle struct {
	Family string  `json:"family"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Color  string  `json:"color"`
}

type Watermark struct {
	Text  string    `json:"text"`
	Style TextStyle `json:"style"`
}

type Branding struct {
	Logo     string    `json:"logo"`
	Subtitle string    `json:"subtitle"`
	Credit   string    `json:"credit"`
	LogoFont TextStyle `json:"logoFont"`
	SubFont  TextStyle `json:"subFont"`
	CredFont TextStyle `json:"creditFont"`
}

// Config is the immutable configuration consumed by the editor and the compositor.
type Config struct {
	Canvas         Canvas      `json:"canvas"`
	Subject        ScaleLimits `json:"subject"`
	Fonts          []Font      `json:"fonts"`
	TextColors     []TextColor `json:"textColors"`
	Watermark      Watermark   `json:"watermark"`
	Branding       Branding    `json:"branding"`
	MaxUploadBytes int64       `json:"maxUploadBytes"`

	// GenericFonts binds generic families ("serif", "cursive") to font files.
	// Unbound generics render with the embedded Go fonts, which have no serif face.
	GenericFonts map[string]string `json:"genericFonts,omitempty"`
}

const (
	DefaultTextSize = 42
	MinTextSize     = 16
	MaxTextSize     = 120
	MaxTextLength   = 40

	// DragMargin is how far, in canvas units, the subject box must stay inside each canvas edge.
	DragMargin = 150.0

	// InitialFitRatio is the share of the larger canvas side a new subject may occupy.
	InitialFitRatio = 0.65
)

func DefaultConfig() Config {
	return Config{
		Canvas:  Canvas{Width: 1080, Height: 1350},
		Subject: ScaleLimits{Min: 0.3, Max: 2.5, Default: 0.85},
		Fonts: []Font{
			{ID: "playfair", Name: "Playfair Display", Family: "Playfair Display, serif"},
			{ID: "montserrat", Name: "Montserrat", Family: "Montserrat, sans-serif"},
			{ID: "dancing", Name: "Dancing Script", Family: "Dancing Script, cursive"},
			{ID: "bebas", Name: "Bebas Neue", Family: "Bebas Neue, sans-serif"},
			{ID: "pacifico", Name: "Pacifico", Family: "Pacifico, cursive"},
		},
		TextColors: []TextColor{
			{ID: "white", Name: "Blanco", Color: "#FFFFFF"},
			{ID: "black", Name: "Negro", Color: "#000000"},
			{ID: "gold", Name: "Dorado", Color: "#FFD700"},
			{ID: "orange", Name: "Naranja", Color: "#FF8C42"},
			{ID: "blue", Name: "Azul", Color: "#003366"},
			{ID: "red", Name: "Rojo", Color: "#DC3545"},
		},
		Watermark: Watermark{
			Text:  "EverMoment PREVIEW",
			Style: TextStyle{Family: "Montserrat, sans-serif", Size: 48, Bold: true, Color: "rgba(255, 255, 255, 0.25)"},
		},
		Branding: Branding{
			Logo:     "EverMoment",
			Subtitle: "Digital Souvenir",
			Credit:   "evermoment.sv",
			LogoFont: TextStyle{Family: "Playfair Display, serif", Size: 36, Bold: true, Color: "#FFFFFF"},
			SubFont:  TextStyle{Family: "Montserrat, sans-serif", Size: 20, Color: "rgba(255, 255, 255, 0.85)"},
			CredFont: TextStyle{Family: "Montserrat, sans-serif", Size: 22, Color: "rgba(255, 255, 255, 0.5)"},
		},
		MaxUploadBytes: 10 * 1024 * 1024,
	}
}

// LoadConfig reads a JSON file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read editor config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse editor config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		problems = append(problems, fmt.Sprintf("canvas must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height))
	}
	s := c.Subject
	if s.Min <= 0 || s.Min > s.Max {
		problems = append(problems, fmt.Sprintf("subject scale range [%g,%g] is invalid", s.Min, s.Max))
	}
	if s.Default < s.Min || s.Default > s.Max {
		problems = append(problems, fmt.Sprintf("default scale %g outside [%g,%g]", s.Default, s.Min, s.Max))
	}
	if len(c.Fonts) == 0 {
		problems = append(problems, "at least one font is required")
	}
	for _, f := range c.Fonts {
		if f.ID == "" || f.Family == "" {
			problems = append(problems, fmt.Sprintf("font %q needs an id and a family", f.Name))
		}
	}
	if len(c.TextColors) == 0 {
		problems = append(problems, "at least one text color is required")
	}
	for _, tc := range c.TextColors {
		if !isHexColor(tc.Color) {
			problems = append(problems, fmt.Sprintf("text color %q is not #RRGGBB", tc.Color))
		}
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "max upload size must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid editor config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) fontByKey(key string) (Font, bool) {
	for _, f := range c.Fonts {
		if f.ID == key || f.Family == key {
			return f, true
		}
	}
	return Font{}, false
}

func (c Config) colorByKey(key string) (string, bool) {
	for _, tc := range c.TextColors {
		if tc.ID == key || strings.EqualFold(tc.Color, key) {
			return tc.Color, true
		}
	}
	if isHexColor(key) {
		return strings.ToUpper(key), true
	}
	return "", false
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
