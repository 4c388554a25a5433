package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/geom"
)

// relStepTol is the relative tolerance for deciding that coordinate steps
// are constant. Linspace-style axes carry float noise a few ULP wide;
// anything beyond one part in 1e5 is a genuinely uneven grid.
const relStepTol = 1e-5

// defaultFallbackRes is used for degenerate single-pixel axes where no
// step can be measured.
const defaultFallbackRes = 1.0

// CoordsOptions tunes FromCoords. The zero value is a valid default.
type CoordsOptions struct {
	// TileSize overrides the tile size otherwise taken from the
	// coordinate arrays' chunking.
	TileSize Size
	// FallbackRes is the resolution assumed for a single-pixel axis.
	// Zero means 1.
	FallbackRes float64
}

// FromCoords derives a grid mapping from a pair of coordinate variables.
// Both must be 1-D axes or both 2-D images over the same (y, x)
// dimensions. Geographic coordinates crossing the anti-meridian are
// unwrapped into the continuous [0, 360) range.
func FromCoords(xCoords, yCoords *cube.Variable, crs coord.CRS, opts *CoordsOptions) (*GridMapping, error) {
	if opts == nil {
		opts = &CoordsOptions{}
	}
	fallbackRes := opts.FallbackRes
	if fallbackRes <= 0 {
		fallbackRes = defaultFallbackRes
	}

	xShape := xCoords.Data.Shape()
	yShape := yCoords.Data.Shape()
	if len(xShape) != len(yShape) {
		return nil, fmt.Errorf("grid: coordinate variables %q and %q have different dimensionality (%d vs %d)",
			xCoords.Name, yCoords.Name, len(xShape), len(yShape))
	}

	switch len(xShape) {
	case 1:
		return fromCoords1D(xCoords, yCoords, crs, opts.TileSize, fallbackRes)
	case 2:
		return fromCoords2D(xCoords, yCoords, crs, opts.TileSize)
	default:
		return nil, fmt.Errorf("grid: coordinate variable %q must be 1-D or 2-D, got %d dimensions",
			xCoords.Name, len(xShape))
	}
}

func fromCoords1D(xCoords, yCoords *cube.Variable, crs coord.CRS, tileSize Size, fallbackRes float64) (*GridMapping, error) {
	xs := append([]float64(nil), xCoords.Data.Values()...)
	ys := append([]float64(nil), yCoords.Data.Values()...)
	if len(xs) == 0 || len(ys) == 0 {
		return nil, fmt.Errorf("grid: coordinate variables must not be empty")
	}

	isLon360 := false
	if crs.Geographic {
		isLon360 = unwrapLon(xs)
	}

	xAxis, err := analyzeAxis(xCoords.Name, xs, fallbackRes)
	if err != nil {
		return nil, err
	}
	yAxis, err := analyzeAxis(yCoords.Name, ys, fallbackRes)
	if err != nil {
		return nil, err
	}

	w, h := len(xs), len(ys)
	gm := &GridMapping{
		size:      Size{W: w, H: h},
		xRes:      xAxis.res,
		yRes:      yAxis.res,
		crs:       crs,
		isRegular: xAxis.regular && yAxis.regular,
		isJAxisUp: yAxis.ascending,
		isLon360:  isLon360,
		xVarName:  xCoords.Name,
		yVarName:  yCoords.Name,
		xDimName:  xCoords.Dims[0],
		yDimName:  yCoords.Dims[0],
	}
	gm.bbox = geom.NewBounds(
		xAxis.min-xAxis.res/2, yAxis.min-yAxis.res/2,
		xAxis.max+xAxis.res/2, yAxis.max+yAxis.res/2,
	)
	if !gm.isRegular {
		gm.x1d, gm.y1d = xs, ys
	}
	gm.tileSize = tileSizeFor1D(tileSize, gm.size, xCoords, yCoords)
	return gm, nil
}

type axisInfo struct {
	min, max  float64
	res       float64
	regular   bool
	ascending bool
}

// analyzeAxis checks monotonicity of a 1-D coordinate axis and measures
// its step. Irregular steps yield a representative resolution from the
// median absolute step, rounded to a tidy fraction.
func analyzeAxis(name string, values []float64, fallbackRes float64) (axisInfo, error) {
	n := len(values)
	for _, v := range values {
		if math.IsNaN(v) {
			return axisInfo{}, fmt.Errorf("grid: coordinate variable %q contains NaN", name)
		}
	}
	if n == 1 {
		return axisInfo{min: values[0], max: values[0], res: fallbackRes, regular: true}, nil
	}

	ascending := values[1] > values[0]
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := values[i] - values[i-1]
		if d == 0 || (d > 0) != ascending {
			return axisInfo{}, fmt.Errorf("grid: coordinate variable %q must be strictly monotonic", name)
		}
		diffs[i-1] = math.Abs(d)
	}

	// The endpoint-based mean step is the exact linspace spacing and is
	// robust against per-step rounding noise.
	meanStep := math.Abs(values[n-1]-values[0]) / float64(n-1)
	regular := true
	for _, d := range diffs {
		if math.Abs(d-meanStep) > relStepTol*meanStep {
			regular = false
			break
		}
	}

	res := meanStep
	if !regular {
		res = roundToFraction(median(diffs), 1, 0.5)
	}
	if res <= 0 {
		return axisInfo{}, fmt.Errorf("grid: coordinate variable %q has zero resolution", name)
	}

	lo, hi := values[0], values[n-1]
	if !ascending {
		lo, hi = hi, lo
	}
	return axisInfo{min: lo, max: hi, res: res, regular: regular, ascending: ascending}, nil
}

func fromCoords2D(xCoords, yCoords *cube.Variable, crs coord.CRS, tileSize Size) (*GridMapping, error) {
	xShape := xCoords.Data.Shape()
	yShape := yCoords.Data.Shape()
	if xShape[0] != yShape[0] || xShape[1] != yShape[1] {
		return nil, fmt.Errorf("grid: 2-D coordinate variables %q and %q have mismatched shapes %v vs %v",
			xCoords.Name, yCoords.Name, xShape, yShape)
	}
	h, w := xShape[0], xShape[1]
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("grid: 2-D coordinate variables must be at least 2x2, got %dx%d", w, h)
	}
	if len(xCoords.Dims) != 2 || xCoords.Dims[0] != yCoords.Dims[0] || xCoords.Dims[1] != yCoords.Dims[1] {
		return nil, fmt.Errorf("grid: 2-D coordinate variables %q and %q must share their (y, x) dimensions",
			xCoords.Name, yCoords.Name)
	}

	xImg := append([]float64(nil), xCoords.Data.Values()...)
	yImg := append([]float64(nil), yCoords.Data.Values()...)

	isLon360 := false
	if crs.Geographic {
		isLon360 = unwrapLonImage(xImg, w, h)
	}

	ts := tileSizeFor2D(tileSize, Size{W: w, H: h}, xCoords)
	extent := geom.ComputeXYBBox(xImg, yImg, w, h, ts.W, ts.H, 0)
	if math.IsNaN(extent.MinX) || math.IsNaN(extent.MinY) {
		return nil, fmt.Errorf("grid: 2-D coordinate variables %q/%q contain no finite values",
			xCoords.Name, yCoords.Name)
	}

	gm := &GridMapping{
		size:     Size{W: w, H: h},
		crs:      crs,
		isLon360: isLon360,
		xVarName: xCoords.Name,
		yVarName: yCoords.Name,
		xDimName: xCoords.Dims[1],
		yDimName: yCoords.Dims[0],
	}

	if dx, dy, ok := detectRegular2D(xImg, yImg, w, h); ok {
		gm.isRegular = true
		gm.xRes = math.Abs(dx)
		gm.yRes = math.Abs(dy)
		gm.isJAxisUp = dy > 0
	} else {
		res := minNeighborDistance(xImg, yImg, w, h)
		if res <= 0 || math.IsInf(res, 1) {
			return nil, fmt.Errorf("grid: 2-D coordinate variables %q/%q have zero spatial extent",
				xCoords.Name, yCoords.Name)
		}
		res = roundToFraction(res, 1, 0.5)
		gm.xRes = res
		gm.yRes = res
		gm.isJAxisUp = jAxisUp2D(yImg, w, h)
		gm.xImg, gm.yImg = xImg, yImg
	}

	gm.bbox = geom.NewBounds(
		extent.MinX-gm.xRes/2, extent.MinY-gm.yRes/2,
		extent.MaxX+gm.xRes/2, extent.MaxY+gm.yRes/2,
	)
	gm.tileSize = ts
	return gm, nil
}

// detectRegular2D reports whether the 2-D coordinate images describe an
// axis-aligned lattice: x depends only on the column index with constant
// step, y only on the row index. NaNs disqualify immediately.
func detectRegular2D(xImg, yImg []float64, w, h int) (dx, dy float64, ok bool) {
	dx = xImg[1] - xImg[0]
	dy = yImg[w] - yImg[0]
	if math.IsNaN(dx) || math.IsNaN(dy) || dx == 0 || dy == 0 {
		return 0, 0, false
	}
	xTol := relStepTol * math.Abs(dx)
	yTol := relStepTol * math.Abs(dy)
	x0, y0 := xImg[0], yImg[0]
	for j := 0; j < h; j++ {
		row := j * w
		wantY := y0 + float64(j)*dy
		for i := 0; i < w; i++ {
			x := xImg[row+i]
			y := yImg[row+i]
			if math.IsNaN(x) || math.IsNaN(y) {
				return 0, 0, false
			}
			if math.Abs(x-(x0+float64(i)*dx)) > xTol || math.Abs(y-wantY) > yTol {
				return 0, 0, false
			}
		}
	}
	return dx, dy, true
}

// minNeighborDistance finds the smallest positive Euclidean distance
// between horizontally or vertically adjacent pixel centers, skipping
// pairs with missing coordinates.
func minNeighborDistance(xImg, yImg []float64, w, h int) float64 {
	best := math.Inf(1)
	consider := func(i0, i1 int) {
		dx := xImg[i1] - xImg[i0]
		dy := yImg[i1] - yImg[i0]
		if math.IsNaN(dx) || math.IsNaN(dy) {
			return
		}
		if d := math.Hypot(dx, dy); d > 0 && d < best {
			best = d
		}
	}
	for j := 0; j < h; j++ {
		row := j * w
		for i := 0; i < w; i++ {
			if i+1 < w {
				consider(row+i, row+i+1)
			}
			if j+1 < h {
				consider(row+i, row+i+w)
			}
		}
	}
	return best
}

func jAxisUp2D(yImg []float64, w, h int) bool {
	for i := 0; i < w; i++ {
		top := yImg[i]
		bottom := yImg[(h-1)*w+i]
		if !math.IsNaN(top) && !math.IsNaN(bottom) && top != bottom {
			return bottom > top
		}
	}
	return false
}

// unwrapLon rewrites a longitude axis that jumps across the anti-meridian
// into the continuous [0, 360) range. Reports whether the result uses
// values beyond 180.
func unwrapLon(values []float64) bool {
	crosses := false
	for i := 1; i < len(values); i++ {
		if math.Abs(values[i]-values[i-1]) > 180 {
			crosses = true
			break
		}
	}
	if crosses {
		for i, v := range values {
			if v < 0 {
				values[i] = v + 360
			}
		}
	}
	for _, v := range values {
		if v > 180 {
			return true
		}
	}
	return false
}

func unwrapLonImage(values []float64, w, h int) bool {
	crosses := false
scan:
	for j := 0; j < h; j++ {
		row := j * w
		for i := 0; i < w; i++ {
			if i+1 < w && math.Abs(values[row+i+1]-values[row+i]) > 180 {
				crosses = true
				break scan
			}
			if j+1 < h && math.Abs(values[row+i+w]-values[row+i]) > 180 {
				crosses = true
				break scan
			}
		}
	}
	if crosses {
		for i, v := range values {
			if v < 0 {
				values[i] = v + 360
			}
		}
	}
	for _, v := range values {
		if v > 180 {
			return true
		}
	}
	return false
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// roundToFraction rounds value to the nearest multiple of
// resolution*10^k, where k keeps the given number of significant digits.
// roundToFraction(0.2236, 1, 0.5) == 0.2.
func roundToFraction(value float64, digits int, resolution float64) float64 {
	if value == 0 {
		return 0
	}
	exp := math.Ceil(math.Log10(math.Abs(value)))
	frac := math.Pow(10, exp-float64(digits)) * resolution
	return math.Round(value/frac) * frac
}

func tileSizeFor1D(override, size Size, xCoords, yCoords *cube.Variable) Size {
	if !override.IsZero() {
		return clampTileSize(override, size)
	}
	xChunks := xCoords.Data.Chunks()
	yChunks := yCoords.Data.Chunks()
	if len(xChunks) == 1 && len(yChunks) == 1 {
		return clampTileSize(Size{W: xChunks[0], H: yChunks[0]}, size)
	}
	return size
}

func tileSizeFor2D(override, size Size, xCoords *cube.Variable) Size {
	if !override.IsZero() {
		return clampTileSize(override, size)
	}
	chunks := xCoords.Data.Chunks()
	if len(chunks) == 2 {
		return clampTileSize(Size{W: chunks[1], H: chunks[0]}, size)
	}
	return size
}
