// Package grid describes the spatial geometry of a raster dataset: its
// coordinate reference system, pixel grid, resolution, bounding box,
// tiling, and axis orientation. A GridMapping is derived from coordinate
// arrays or dataset metadata and consumed by the resampling engine.
package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/geom"
)

// Size is a raster extent in pixels.
type Size struct {
	W, H int
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool { return s.W == 0 && s.H == 0 }

// GridMapping is an immutable description of a dataset's spatial grid.
// Derived variants are produced by WithTileSize, WithJAxisUp, and
// ToRegular; instances are never mutated after construction. The 2-band
// coordinate image is computed lazily, exactly once, and owned by the
// mapping.
type GridMapping struct {
	size     Size
	tileSize Size
	xRes     float64
	yRes     float64
	bbox     geom.Bounds
	crs      coord.CRS

	isRegular bool
	isJAxisUp bool
	isLon360  bool

	xVarName, yVarName string
	xDimName, yDimName string

	// Source coordinates for irregular grids. Exactly one of the pairs is
	// set: 1-D axes or full row-major images. Regular grids keep neither
	// and synthesize coordinates from bbox and resolution.
	x1d, y1d   []float64
	xImg, yImg []float64

	xyOnce           sync.Once
	cachedX, cachedY []float64
}

// Size returns the grid extent in pixels (width, height).
func (gm *GridMapping) Size() Size { return gm.size }

// Width returns the pixel count along x.
func (gm *GridMapping) Width() int { return gm.size.W }

// Height returns the pixel count along y.
func (gm *GridMapping) Height() int { return gm.size.H }

// TileSize returns the chunk extent used for tiled evaluation.
func (gm *GridMapping) TileSize() Size { return gm.tileSize }

// NumTilesX returns the tile count along x, counting partial edge tiles.
func (gm *GridMapping) NumTilesX() int { return (gm.size.W + gm.tileSize.W - 1) / gm.tileSize.W }

// NumTilesY returns the tile count along y, counting partial edge tiles.
func (gm *GridMapping) NumTilesY() int { return (gm.size.H + gm.tileSize.H - 1) / gm.tileSize.H }

// IsTiled reports whether the grid has more than one tile in any direction.
func (gm *GridMapping) IsTiled() bool { return gm.NumTilesX() > 1 || gm.NumTilesY() > 1 }

// XYRes returns the (x, y) ground resolution. Both are always positive.
func (gm *GridMapping) XYRes() (float64, float64) { return gm.xRes, gm.yRes }

// XRes returns the x resolution.
func (gm *GridMapping) XRes() float64 { return gm.xRes }

// YRes returns the y resolution.
func (gm *GridMapping) YRes() float64 { return gm.yRes }

// XYBBox returns the bounding box in CRS units, normalized min < max
// regardless of storage axis orientation.
func (gm *GridMapping) XYBBox() geom.Bounds { return gm.bbox }

// CRS returns the coordinate reference system.
func (gm *GridMapping) CRS() coord.CRS { return gm.crs }

// IsRegular reports whether pixel centers form an exact axis-aligned
// lattice with constant per-axis spacing.
func (gm *GridMapping) IsRegular() bool { return gm.isRegular }

// IsJAxisUp reports whether the row index increases with increasing
// spatial y coordinate.
func (gm *GridMapping) IsJAxisUp() bool { return gm.isJAxisUp }

// IsLon360 reports whether longitudes are held in the continuous [0, 360)
// representation after anti-meridian unwrapping.
func (gm *GridMapping) IsLon360() bool { return gm.isLon360 }

// XYVarNames returns the (x, y) coordinate variable names.
func (gm *GridMapping) XYVarNames() (string, string) { return gm.xVarName, gm.yVarName }

// XYDimNames returns the (x, y) dimension names.
func (gm *GridMapping) XYDimNames() (string, string) { return gm.xDimName, gm.yDimName }

// WithTileSize returns a copy of the mapping using the given tile size.
// A zero size resets to untiled (one tile covering the grid).
func (gm *GridMapping) WithTileSize(tileSize Size) *GridMapping {
	out := gm.shallowCopy()
	out.tileSize = clampTileSize(tileSize, gm.size)
	return out
}

// WithJAxisUp returns a copy of the mapping with the given y-axis
// orientation. Only meaningful for regular grids, where the coordinate
// image is synthesized; the bbox is orientation-independent.
func (gm *GridMapping) WithJAxisUp(up bool) *GridMapping {
	out := gm.shallowCopy()
	out.isJAxisUp = up
	return out
}

// Derive returns a copy with both the tile size and the y-axis orientation
// replaced. Shorthand for WithTileSize followed by WithJAxisUp.
func (gm *GridMapping) Derive(tileSize Size, jAxisUp bool) *GridMapping {
	out := gm.shallowCopy()
	out.tileSize = clampTileSize(tileSize, gm.size)
	out.isJAxisUp = jAxisUp
	return out
}

func (gm *GridMapping) shallowCopy() *GridMapping {
	return &GridMapping{
		size:      gm.size,
		tileSize:  gm.tileSize,
		xRes:      gm.xRes,
		yRes:      gm.yRes,
		bbox:      gm.bbox,
		crs:       gm.crs,
		isRegular: gm.isRegular,
		isJAxisUp: gm.isJAxisUp,
		isLon360:  gm.isLon360,
		xVarName:  gm.xVarName,
		yVarName:  gm.yVarName,
		xDimName:  gm.xDimName,
		yDimName:  gm.yDimName,
		x1d:       gm.x1d,
		y1d:       gm.y1d,
		xImg:      gm.xImg,
		yImg:      gm.yImg,
	}
}

func clampTileSize(tileSize, size Size) Size {
	if tileSize.IsZero() {
		return size
	}
	if tileSize.W <= 0 || tileSize.W > size.W {
		tileSize.W = size.W
	}
	if tileSize.H <= 0 || tileSize.H > size.H {
		tileSize.H = size.H
	}
	return tileSize
}

// XYImages returns the per-pixel x and y coordinate images in row-major
// order, each of length Width*Height. For regular grids they are
// synthesized from the bbox and resolution; for irregular grids they come
// from the construction-time coordinates. The result is memoized and must
// be treated as read-only.
func (gm *GridMapping) XYImages() (xImg, yImg []float64) {
	gm.xyOnce.Do(func() {
		switch {
		case gm.xImg != nil:
			gm.cachedX, gm.cachedY = gm.xImg, gm.yImg
		case gm.x1d != nil:
			gm.cachedX, gm.cachedY = outerProduct(gm.x1d, gm.y1d)
		default:
			gm.cachedX, gm.cachedY = gm.synthesizeCoords()
		}
	})
	return gm.cachedX, gm.cachedY
}

func outerProduct(xs, ys []float64) (xImg, yImg []float64) {
	w, h := len(xs), len(ys)
	xImg = make([]float64, w*h)
	yImg = make([]float64, w*h)
	for j := 0; j < h; j++ {
		row := j * w
		copy(xImg[row:row+w], xs)
		for i := 0; i < w; i++ {
			yImg[row+i] = ys[j]
		}
	}
	return xImg, yImg
}

func (gm *GridMapping) synthesizeCoords() (xImg, yImg []float64) {
	w, h := gm.size.W, gm.size.H
	xAxis := make([]float64, w)
	for i := 0; i < w; i++ {
		xAxis[i] = gm.bbox.MinX + (float64(i)+0.5)*gm.xRes
	}
	yAxis := make([]float64, h)
	for j := 0; j < h; j++ {
		if gm.isJAxisUp {
			yAxis[j] = gm.bbox.MinY + (float64(j)+0.5)*gm.yRes
		} else {
			yAxis[j] = gm.bbox.MaxY - (float64(j)+0.5)*gm.yRes
		}
	}
	return outerProduct(xAxis, yAxis)
}

// XYBBoxes returns one CRS-space rectangle per tile in tile-row-major
// order. It requires a regular grid, which is the only kind used as a
// rectification target.
func (gm *GridMapping) XYBBoxes() []geom.Bounds {
	if !gm.isRegular {
		panic("grid: XYBBoxes requires a regular grid mapping")
	}
	ntx, nty := gm.NumTilesX(), gm.NumTilesY()
	boxes := make([]geom.Bounds, 0, ntx*nty)
	for tr := 0; tr < nty; tr++ {
		j0 := tr * gm.tileSize.H
		j1 := min(j0+gm.tileSize.H, gm.size.H)
		for tc := 0; tc < ntx; tc++ {
			i0 := tc * gm.tileSize.W
			i1 := min(i0+gm.tileSize.W, gm.size.W)

			x0 := gm.bbox.MinX + float64(i0)*gm.xRes
			x1 := gm.bbox.MinX + float64(i1)*gm.xRes
			var y0, y1 float64
			if gm.isJAxisUp {
				y0 = gm.bbox.MinY + float64(j0)*gm.yRes
				y1 = gm.bbox.MinY + float64(j1)*gm.yRes
			} else {
				y0 = gm.bbox.MaxY - float64(j1)*gm.yRes
				y1 = gm.bbox.MaxY - float64(j0)*gm.yRes
			}
			boxes = append(boxes, geom.NewBounds(x0, y0, x1, y1))
		}
	}
	return boxes
}

// IjBBoxesFromXYBBoxes finds, for each CRS-space query rectangle, the
// pixel-index rectangle of this grid containing every pixel whose
// coordinate falls inside the query expanded by xyBorder, then grown by
// ijBorder pixels and clamped to the image. The -1 sentinel marks queries
// matching no pixel. The scan parallelizes over the queries.
func (gm *GridMapping) IjBBoxesFromXYBBoxes(xyBBoxes []geom.Bounds, xyBorder float64, ijBorder, workers int) []geom.IJBBox {
	xImg, yImg := gm.XYImages()
	return geom.ComputeIJBBoxes(xImg, yImg, gm.size.W, gm.size.H, xyBBoxes, xyBorder, ijBorder, workers)
}

// ToCoords produces the coordinate variables that encode this mapping
// back into a dataset: 1-D axes for regular grids, 2-D images otherwise.
func (gm *GridMapping) ToCoords() []*cube.Variable {
	if gm.isRegular {
		w, h := gm.size.W, gm.size.H
		xs := make([]float64, w)
		for i := 0; i < w; i++ {
			xs[i] = gm.bbox.MinX + (float64(i)+0.5)*gm.xRes
		}
		ys := make([]float64, h)
		for j := 0; j < h; j++ {
			if gm.isJAxisUp {
				ys[j] = gm.bbox.MinY + (float64(j)+0.5)*gm.yRes
			} else {
				ys[j] = gm.bbox.MaxY - (float64(j)+0.5)*gm.yRes
			}
		}
		xVar := cube.NewVariable(gm.xVarName, []string{gm.xDimName}, []int{w}, xs)
		yVar := cube.NewVariable(gm.yVarName, []string{gm.yDimName}, []int{h}, ys)
		if gm.crs.Geographic {
			xVar.Attrs["units"] = "degrees_east"
			yVar.Attrs["units"] = "degrees_north"
		}
		return []*cube.Variable{xVar, yVar}
	}

	xImg, yImg := gm.XYImages()
	dims := []string{gm.yDimName, gm.xDimName}
	shape := []int{gm.size.H, gm.size.W}
	xVar := cube.NewVariable(gm.xVarName, dims, shape, xImg)
	yVar := cube.NewVariable(gm.yVarName, dims, shape, yImg)
	return []*cube.Variable{xVar, yVar}
}

// ToRegular computes the best-fit regular grid covering this mapping's
// bounding box at its finer axis resolution. Regular mappings derive only
// the tile size. A zero tileSize keeps the source tiling untiled.
func (gm *GridMapping) ToRegular(tileSize Size) *GridMapping {
	if gm.isRegular {
		return gm.WithTileSize(tileSize)
	}

	res := math.Min(gm.xRes, gm.yRes)
	width := 1 + int(math.Ceil(gm.bbox.Width()/res-1e-8))
	height := 1 + int(math.Ceil(gm.bbox.Height()/res-1e-8))

	out := Regular(
		Size{W: width, H: height},
		gm.bbox.MinX, gm.bbox.MinY,
		res, res,
		gm.crs,
		tileSize,
	)
	out.xVarName, out.yVarName = gm.xVarName, gm.yVarName
	out.xDimName, out.yDimName = gm.xDimName, gm.yDimName
	out.isLon360 = gm.isLon360
	return out
}

// String returns a compact human-readable summary.
func (gm *GridMapping) String() string {
	kind := "irregular"
	if gm.isRegular {
		kind = "regular"
	}
	return fmt.Sprintf("%s %dx%d grid, res (%g, %g), bbox (%g, %g, %g, %g), %s",
		kind, gm.size.W, gm.size.H, gm.xRes, gm.yRes,
		gm.bbox.MinX, gm.bbox.MinY, gm.bbox.MaxX, gm.bbox.MaxY, gm.crs)
}
