// Package geom provides the geometry primitives under the grid-mapping and
// rectification core: bounding boxes in CRS space and pixel-index space,
// and the tile-parallel reductions that compute them.
package geom

import "math"

// Bounds is an axis-aligned rectangle in CRS units, normalized so that
// MinX < MaxX and MinY < MaxY for any non-empty box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBounds returns the normalized bounds of two corner points.
func NewBounds(x1, y1, x2, y2 float64) Bounds {
	return Bounds{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

// IsEmpty reports whether the bounds contain no area, including the NaN
// bounds produced by reducing all-NaN coordinate data.
func (b Bounds) IsEmpty() bool {
	return !(b.MinX < b.MaxX && b.MinY < b.MaxY)
}

// Width returns the x extent.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the y extent.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Expand grows the bounds by the given border on every side.
func (b Bounds) Expand(border float64) Bounds {
	return Bounds{b.MinX - border, b.MinY - border, b.MaxX + border, b.MaxY + border}
}

// Intersects reports whether two bounds overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether the point (x, y) lies within the bounds.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Union returns the smallest bounds covering both.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}
