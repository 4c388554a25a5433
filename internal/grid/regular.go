package grid

import (
	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/geom"
)

// Regular constructs a regular grid mapping from its defining parameters:
// pixel extent, lower-left corner of the bounding box, per-axis
// resolution, and CRS. Rows are stored top-down (j axis points down),
// matching the usual image layout; use WithJAxisUp to flip. A zero
// tileSize leaves the grid untiled.
func Regular(size Size, xMin, yMin, xRes, yRes float64, crs coord.CRS, tileSize Size) *GridMapping {
	if size.W <= 0 || size.H <= 0 {
		panic("grid: size must be positive")
	}
	if xRes <= 0 || yRes <= 0 {
		panic("grid: resolution must be positive")
	}
	xVar, yVar := "x", "y"
	if crs.Geographic {
		xVar, yVar = "lon", "lat"
	}
	return &GridMapping{
		size:      size,
		tileSize:  clampTileSize(tileSize, size),
		xRes:      xRes,
		yRes:      yRes,
		bbox:      geom.NewBounds(xMin, yMin, xMin+float64(size.W)*xRes, yMin+float64(size.H)*yRes),
		crs:       crs,
		isRegular: true,
		isJAxisUp: false,
		xVarName:  xVar,
		yVarName:  yVar,
		xDimName:  xVar,
		yDimName:  yVar,
	}
}
