package encode

import (
	"image"
	"image/color"
	"math"
)

// RenderOptions controls Quicklook rendering.
type RenderOptions struct {
	// MaxSize caps the longer output edge; larger fields are
	// downsampled by nearest neighbor. Zero means no cap.
	MaxSize int

	// Min and Max stretch the value range onto the gray ramp. Both zero
	// means auto-stretch over the finite values.
	Min, Max float64
}

// Quicklook renders a row-major float64 field as a grayscale image.
// Missing values (NaN) come out fully transparent.
func Quicklook(values []float64, w, h int, opts RenderOptions) *image.NRGBA {
	step := 1
	if opts.MaxSize > 0 {
		longer := max(w, h)
		step = (longer + opts.MaxSize - 1) / opts.MaxSize
		if step < 1 {
			step = 1
		}
	}
	ow := (w + step - 1) / step
	oh := (h + step - 1) / step

	lo, hi := opts.Min, opts.Max
	if lo == 0 && hi == 0 {
		lo, hi = valueRange(values)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, ow, oh))
	for oy := 0; oy < oh; oy++ {
		sy := oy * step
		for ox := 0; ox < ow; ox++ {
			v := values[sy*w+ox*step]
			if math.IsNaN(v) {
				continue // zero value is already transparent
			}
			g := (v - lo) / span
			if g < 0 {
				g = 0
			} else if g > 1 {
				g = 1
			}
			c := uint8(g * 255.0)
			img.SetNRGBA(ox, oy, color.NRGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func valueRange(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 1
	}
	return lo, hi
}
