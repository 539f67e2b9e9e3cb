package compositor

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"evermoment/internal/editor"
)

type fontPair struct {
	regular *opentype.Font
	bold    *opentype.Font
}

// FontBook resolves CSS-style family lists to parsed fonts.
// Families without a loaded file fall back to the embedded Go fonts.
type FontBook struct {
	families map[string]fontPair
	sans     fontPair
	mono     fontPair
}

func NewFontBook(fonts []editor.Font) (*FontBook, error) {
	sans, err := parsePair(goregular.TTF, gobold.TTF)
	if err != nil {
		return nil, err
	}
	mono, err := parsePair(gomono.TTF, gomonobold.TTF)
	if err != nil {
		return nil, err
	}
	b := &FontBook{
		families: make(map[string]fontPair),
		sans:     sans,
		mono:     mono,
	}
	for _, f := range fonts {
		if f.Path == "" {
			continue
		}
		parsed, err := loadFont(f.Path)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", f.ID, err)
		}
		b.families[familyKey(firstFamily(f.Family))] = fontPair{regular: parsed, bold: parsed}
	}
	return b, nil
}

var genericFamilies = map[string]bool{
	"serif":      true,
	"sans-serif": true,
	"monospace":  true,
	"cursive":    true,
	"fantasy":    true,
	"system-ui":  true,
}

// LoadGeneric binds a generic family such as "serif" to a font file so lists
// ending in it stop falling back to the embedded fonts.
func (b *FontBook) LoadGeneric(generic, path string) error {
	key := familyKey(generic)
	if !genericFamilies[key] {
		return fmt.Errorf("%q is not a generic font family", generic)
	}
	parsed, err := loadFont(path)
	if err != nil {
		return fmt.Errorf("generic font %s: %w", key, err)
	}
	b.families[key] = fontPair{regular: parsed, bold: parsed}
	return nil
}

func loadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return parsed, nil
}

func parsePair(regular, bold []byte) (fontPair, error) {
	r, err := opentype.Parse(regular)
	if err != nil {
		return fontPair{}, fmt.Errorf("failed to parse embedded font: %w", err)
	}
	b, err := opentype.Parse(bold)
	if err != nil {
		return fontPair{}, fmt.Errorf("failed to parse embedded font: %w", err)
	}
	return fontPair{regular: r, bold: b}, nil
}

// Resolve walks a family list left to right and returns the first loaded font.
// Generic families not bound with LoadGeneric map to the embedded fonts; an
// unknown list ends at Go Regular.
func (b *FontBook) Resolve(family string, bold bool) *opentype.Font {
	pick := func(p fontPair) *opentype.Font {
		if bold {
			return p.bold
		}
		return p.regular
	}
	for _, name := range strings.Split(family, ",") {
		key := familyKey(name)
		if p, ok := b.families[key]; ok {
			return pick(p)
		}
		if key == "monospace" {
			return pick(b.mono)
		}
		if genericFamilies[key] {
			return pick(b.sans)
		}
	}
	return pick(b.sans)
}

func firstFamily(family string) string {
	name, _, _ := strings.Cut(family, ",")
	return name
}

func familyKey(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
}

type faceKey struct {
	font *opentype.Font
	size float64
}

// faceCache builds faces for one render. Faces are not safe for concurrent use,
// so each render owns its own cache.
type faceCache struct {
	book  *FontBook
	faces map[faceKey]font.Face
}

func (b *FontBook) newFaceCache() *faceCache {
	return &faceCache{book: b, faces: make(map[faceKey]font.Face)}
}

func (c *faceCache) face(family string, size float64, bold bool) (font.Face, error) {
	key := faceKey{font: c.book.Resolve(family, bold), size: size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(key.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	c.faces[key] = f
	return f, nil
}

func (c *faceCache) close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
}
