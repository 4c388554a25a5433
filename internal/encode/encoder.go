// Package encode renders rectified raster fields into quicklook images
// and encodes them as PNG, JPEG, or WebP.
package encode

import (
	"fmt"
	"image"
)

// Encoder encodes an image into bytes of one output format.
type Encoder interface {
	// Encode encodes an image to bytes.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality.
// Quality is ignored by lossless formats.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return newWebPEncoder(quality), nil
	default:
		return nil, fmt.Errorf("unsupported quicklook format: %q (supported: jpeg, png, webp)", format)
	}
}
