package raster

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrUnknownImageFormat is returned for an unsupported image extension.
var ErrUnknownImageFormat = errors.New("unknown image format")

// Encode writes img in the named format: png, webp, bmp or tiff.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return png.Encode(w, img)
	case "webp":
		return nativewebp.Encode(w, img, nil)
	case "bmp":
		return bmp.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownImageFormat, format)
	}
}

// SaveFile writes img to path, choosing the encoder by extension.
func SaveFile(path string, img image.Image) error {
	ext := filepath.Ext(path)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}
	if err := Encode(f, img, ext); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
