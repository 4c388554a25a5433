package grid

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pspoerri/rastercube/internal/coord"
)

// worldFile holds the six parameters of an ESRI world file.
//
// Line 1: pixel width (x-component of pixel size)
// Line 2: rotation about y-axis (typically 0)
// Line 3: rotation about x-axis (typically 0)
// Line 4: pixel height (y-component, typically negative for north-up)
// Line 5: x-coordinate of the center of the upper-left pixel
// Line 6: y-coordinate of the center of the upper-left pixel
type worldFile struct {
	pixelSizeX float64
	rotationY  float64
	rotationX  float64
	pixelSizeY float64
	originX    float64
	originY    float64
}

// FromWorldFile derives a regular grid mapping for a raster of the given
// pixel size from a world file sidecar. Rotated world files are rejected.
// The CRS is inferred from the coordinate ranges.
func FromWorldFile(path string, size Size) (*GridMapping, error) {
	wf, err := parseWorldFile(path)
	if err != nil {
		return nil, err
	}

	xRes := math.Abs(wf.pixelSizeX)
	yRes := math.Abs(wf.pixelSizeY)
	if xRes == 0 || yRes == 0 {
		return nil, fmt.Errorf("grid: world file %s has zero pixel size", path)
	}

	// The world file origin is the center of the upper-left pixel.
	xMin := wf.originX - xRes/2
	yMax := wf.originY + yRes/2
	yMin := yMax - float64(size.H)*yRes

	crs := inferCRS(xMin, yMin, xMin+float64(size.W)*xRes, yMax)
	return Regular(size, xMin, yMin, xRes, yRes, crs, Size{}), nil
}

func parseWorldFile(path string) (*worldFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grid: reading world file %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 6 {
		return nil, fmt.Errorf("grid: world file %s: expected 6 lines, got %d", path, len(lines))
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("grid: world file %s line %d: %w", path, i+1, err)
		}
		vals[i] = v
	}

	wf := &worldFile{
		pixelSizeX: vals[0],
		rotationY:  vals[1],
		rotationX:  vals[2],
		pixelSizeY: vals[3],
		originX:    vals[4],
		originY:    vals[5],
	}
	if wf.rotationX != 0 || wf.rotationY != 0 {
		return nil, fmt.Errorf("grid: world file %s: rotated rasters are not supported (rotation: %f, %f)",
			path, wf.rotationX, wf.rotationY)
	}
	return wf, nil
}

// inferCRS guesses the CRS from the coordinate ranges: lon/lat-sized
// values mean geographic WGS84, web-mercator-sized values mean EPSG:3857.
func inferCRS(minX, minY, maxX, maxY float64) coord.CRS {
	if minX >= -180 && maxX <= 360 && minY >= -90 && maxY <= 90 {
		return coord.WGS84
	}
	if math.Abs(minX) <= coord.OriginShift && math.Abs(maxX) <= coord.OriginShift &&
		math.Abs(minY) <= 20048966.10 && math.Abs(maxY) <= 20048966.10 {
		return coord.WebMercator
	}
	return coord.WGS84
}
