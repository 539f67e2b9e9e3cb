package raster

import (
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
)

// ExportPrefix is prepended to every exported file name.
const ExportPrefix = "evermoment-recuerdo"

// ExportName returns the download file name for a composite exported at t.
func ExportName(t time.Time) string {
	return fmt.Sprintf("%s-%d.png", ExportPrefix, t.UnixMilli())
}

// EncodePNG writes img losslessly.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
