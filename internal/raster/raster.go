// Package raster loads images into opaque handles used by the editor and the compositor.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	_ "golang.org/x/image/webp"
)

// Handle is a decoded raster. It is never mutated after creation.
type Handle struct {
	img image.Image
}

// NewHandle wraps an already decoded image.
func NewHandle(img image.Image) *Handle {
	return &Handle{img: img}
}

func (h *Handle) Width() int {
	return h.img.Bounds().Dx()
}

func (h *Handle) Height() int {
	return h.img.Bounds().Dy()
}

func (h *Handle) Image() image.Image {
	return h.img
}

// LoadError reports that a resource could not be turned into a raster.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Decode reads an image from r, honoring EXIF orientation.
func Decode(r io.Reader) (*Handle, error) {
	return decode(r, "stream")
}

// DecodeBytes decodes an in-memory blob.
func DecodeBytes(data []byte) (*Handle, error) {
	return decode(bytes.NewReader(data), "blob")
}

func decode(r io.Reader, source string) (*Handle, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &LoadError{Source: source, Err: errors.New("empty image")}
	}
	return &Handle{img: img}, nil
}

// Loader resolves image references. http(s) URLs are fetched; a path starting
// with one of the Mounts prefixes is read from that directory; anything else is
// read relative to Root.
type Loader struct {
	Mounts  map[string]string
	Root    string
	Timeout time.Duration
}

func (l Loader) Load(ctx context.Context, ref string) (*Handle, error) {
	if ref == "" {
		return nil, &LoadError{Source: ref, Err: errors.New("empty reference")}
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return l.fetch(ctx, ref)
	}
	return l.open(ref)
}

// Resolve maps a non-URL reference to a local file path. Paths cannot escape
// the directory they resolve into.
func (l Loader) Resolve(ref string) string {
	for prefix, dir := range l.Mounts {
		if rest, ok := strings.CutPrefix(ref, prefix); ok {
			return filepath.Join(dir, filepath.FromSlash(path.Clean("/"+rest)))
		}
	}
	if filepath.IsAbs(ref) || l.Root == "" {
		return ref
	}
	return filepath.Join(l.Root, filepath.FromSlash(path.Clean("/"+ref)))
}

func (l Loader) open(ref string) (*Handle, error) {
	f, err := os.Open(l.Resolve(ref))
	if err != nil {
		return nil, &LoadError{Source: ref, Err: err}
	}
	defer f.Close()

	return decode(f, ref)
}

func (l Loader) fetch(ctx context.Context, url string) (*Handle, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Source: url, Err: err}
	}

	agent := fiber.Get(url).Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return nil, &LoadError{Source: url, Err: err}
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, &LoadError{Source: url, Err: errs[0]}
	}
	if code < 200 || code > 299 {
		return nil, &LoadError{Source: url, Err: fmt.Errorf("unexpected status %d", code)}
	}

	return decode(bytes.NewReader(body), url)
}
