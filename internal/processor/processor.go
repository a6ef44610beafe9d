package processor

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// FormatForExtension maps a file extension (with or without the leading dot)
// to an output encoding. Returns an error for anything the encoder cannot
// produce.
func FormatForExtension(ext string) (imaging.Format, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return format, fmt.Errorf("unsupported image format %q: %w", ext, err)
	}
	return format, nil
}

// Decode parses raw upload bytes into an in-memory raster image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Fit scales img down to fit within the width x height bounding box,
// preserving its aspect ratio. Images already inside the box are returned
// unscaled.
func Fit(img image.Image, width, height int) image.Image {
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

// Exact scales img to exactly width x height, ignoring its aspect ratio.
func Exact(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format imaging.Format) error {
	if err := imaging.Encode(w, img, format); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}
