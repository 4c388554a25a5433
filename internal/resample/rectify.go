package resample

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/grid"
)

// DefaultUVDelta is the tolerance applied to the triangle-interior test.
// Points this close outside a triangle edge still count as inside, which
// closes the hairline seams between adjacent source quads.
const DefaultUVDelta = 1e-3

// DefaultGMName is the name of the CF grid-mapping variable written into
// rectified datasets.
const DefaultGMName = "crs"

var (
	// ErrNoSpatialVars means no data variable carries the source grid's
	// (y, x) dimensions as its trailing two.
	ErrNoSpatialVars = errors.New("resample: no spatially resolved variables")

	// ErrTargetNotRegular means the requested target grid is not a
	// regular lattice, which rectification requires.
	ErrTargetNotRegular = errors.New("resample: target grid mapping must be regular")
)

// RectifyOptions configures RectifyDataset. DefaultRectifyOptions returns
// the standard settings; a nil options pointer means exactly those.
type RectifyOptions struct {
	// VarNames restricts rectification to the named data variables.
	// Empty means all spatially resolved variables.
	VarNames []string

	// SourceGM overrides the grid mapping otherwise derived from the
	// dataset's coordinates.
	SourceGM *grid.GridMapping

	// TargetGM is the regular grid to rectify onto. Nil means the
	// best-fit regular grid covering the source.
	TargetGM *grid.GridMapping

	// TileSize overrides the target tiling and thereby the evaluation
	// strategy: a tiled target is rectified tile by tile in parallel.
	TileSize grid.Size

	// IsJAxisUp, when set, overrides the target grid's row order: true
	// stores rows bottom-up, false top-down. Nil keeps the target's own
	// orientation.
	IsJAxisUp *bool

	// ComputeSubset restricts the source to the window overlapping the
	// target before rectifying.
	ComputeSubset bool

	// UVDelta overrides DefaultUVDelta. Zero means the default.
	UVDelta float64

	// EncodeCF writes a CF grid-mapping variable named GMName and links
	// every rectified variable to it.
	EncodeCF bool

	// GMName is the grid-mapping variable name. Empty means DefaultGMName.
	GMName string

	// OutputIJNames, when both set, adds the fractional source pixel
	// coordinate images as two extra variables with these names.
	OutputIJNames [2]string

	// Workers bounds the worker pool. Zero means one per CPU.
	Workers int
}

// Bool returns a pointer to v, for the tri-state option fields.
func Bool(v bool) *bool { return &v }

// DefaultRectifyOptions returns the standard rectification settings.
func DefaultRectifyOptions() *RectifyOptions {
	return &RectifyOptions{
		ComputeSubset: true,
		UVDelta:       DefaultUVDelta,
		EncodeCF:      true,
		GMName:        DefaultGMName,
	}
}

// RectifyDataset maps a dataset with a possibly irregular grid onto a
// regular target grid. Every target pixel is located inside the source
// pixel quads by inverse bilinear interpolation; values transfer by
// nearest-neighbor lookup, and target pixels outside the source coverage
// get the variable's fill value.
//
// When the source does not overlap the target at all, both results are
// nil with a nil error.
func RectifyDataset(ds *cube.Dataset, opts *RectifyOptions) (*cube.Dataset, *grid.GridMapping, error) {
	if opts == nil {
		opts = DefaultRectifyOptions()
	}
	uvDelta := opts.UVDelta
	if uvDelta == 0 {
		uvDelta = DefaultUVDelta
	}
	gmName := opts.GMName
	if gmName == "" {
		gmName = DefaultGMName
	}

	srcGM := opts.SourceGM
	if srcGM == nil {
		var err error
		srcGM, err = grid.FromDataset(ds, nil)
		if err != nil {
			return nil, nil, err
		}
	}

	dstGM := opts.TargetGM
	if dstGM == nil {
		dstGM = srcGM.ToRegular(opts.TileSize)
	} else if !opts.TileSize.IsZero() {
		dstGM = dstGM.WithTileSize(opts.TileSize)
	}
	if !dstGM.IsRegular() {
		return nil, nil, ErrTargetNotRegular
	}
	// No reprojection path exists; an explicit target must share the
	// source CRS or the bbox comparison below would be meaningless.
	if opts.TargetGM != nil && !srcGM.CRS().Equal(dstGM.CRS()) {
		return nil, nil, ErrCRSMismatch
	}
	if opts.IsJAxisUp != nil && *opts.IsJAxisUp != dstGM.IsJAxisUp() {
		dstGM = dstGM.WithJAxisUp(*opts.IsJAxisUp)
	}

	vars, err := selectSpatialVars(ds, srcGM, opts.VarNames)
	if err != nil {
		return nil, nil, err
	}

	srcX, srcY := srcGM.XYImages()
	src := sourceView{xImg: srcX, yImg: srcY, w: srcGM.Width(), h: srcGM.Height()}

	if opts.ComputeSubset {
		box := sourceSubset(srcGM, dstGM, opts.Workers)
		if box.IsEmpty() {
			return nil, nil, nil
		}
		i0, j0, i1, j1 := box[0], box[1], box[2], box[3]
		src = sourceView{
			xImg: cropImage(srcX, srcGM.Width(), i0, j0, i1-i0+1, j1-j0+1),
			yImg: cropImage(srcY, srcGM.Width(), i0, j0, i1-i0+1, j1-j0+1),
			w:    i1 - i0 + 1,
			h:    j1 - j0 + 1,
		}
		cropped := make([]*cube.Variable, len(vars))
		for k, v := range vars {
			cropped[k] = cube.CropSpatial(v, i0, j0, i1, j1)
		}
		vars = cropped
	}
	if src.w < 2 || src.h < 2 {
		return nil, nil, nil
	}

	var img *ijImages
	if dstGM.IsTiled() {
		img = computeTiledIJImages(src, dstGM, uvDelta, opts.Workers)
	} else {
		img = computeDenseIJImages(src, dstGM, uvDelta)
	}

	out := cube.NewDataset()
	out.Attrs = ds.Attrs.Copy()
	for _, cv := range dstGM.ToCoords() {
		out.AddCoord(cv)
	}
	copyNonSpatialCoords(ds, out, srcGM)

	xDim, yDim := dstGM.XYDimNames()
	for _, v := range vars {
		shape := v.Shape()
		n := len(shape)
		leadShape := shape[:n-2]
		leadDims := v.Dims[:n-2]
		dims := append(append([]string(nil), leadDims...), yDim, xDim)

		fill := v.FillValue()
		var data cube.Array
		if dstGM.IsTiled() {
			data = chunkedResample(v.Data.Values(), shape[n-1], shape[n-2], leadShape, img, dstGM, fill)
		} else {
			values := resampleValues(v.Data.Values(), shape[n-1], shape[n-2], cube.Size(leadShape), img, fill, opts.Workers)
			outShape := append(append([]int(nil), leadShape...), img.h, img.w)
			data = cube.NewDense(outShape, values)
		}

		attrs := v.Attrs.Copy()
		delete(attrs, "grid_mapping")
		if opts.EncodeCF {
			attrs["grid_mapping"] = gmName
		}
		out.AddDataVar(&cube.Variable{Name: v.Name, Dims: dims, Attrs: attrs, Data: data, Dtype: v.Dtype})
	}

	if opts.OutputIJNames[0] != "" && opts.OutputIJNames[1] != "" {
		for _, iv := range img.toVariables(opts.OutputIJNames[0], opts.OutputIJNames[1], xDim, yDim) {
			out.AddDataVar(iv)
		}
	}
	if opts.EncodeCF {
		out.AddCoord(encodeGridMappingVar(dstGM, gmName))
	}
	return out, dstGM, nil
}

// selectSpatialVars picks the data variables to rectify: those whose
// trailing two dimensions are the source grid's (y, x) dimensions, in
// deterministic name order. Explicitly requested variables must exist and
// be spatially resolved.
func selectSpatialVars(ds *cube.Dataset, srcGM *grid.GridMapping, names []string) ([]*cube.Variable, error) {
	xDim, yDim := srcGM.XYDimNames()
	spatial := func(v *cube.Variable) bool {
		n := len(v.Dims)
		return n >= 2 && v.Dims[n-2] == yDim && v.Dims[n-1] == xDim
	}

	if len(names) > 0 {
		vars := make([]*cube.Variable, 0, len(names))
		for _, name := range names {
			v, ok := ds.DataVars[name]
			if !ok {
				return nil, fmt.Errorf("resample: variable %q not found", name)
			}
			if !spatial(v) {
				return nil, fmt.Errorf("resample: variable %q does not have spatial dimensions (%s, %s)", name, yDim, xDim)
			}
			vars = append(vars, v)
		}
		return vars, nil
	}

	var keys []string
	for name, v := range ds.DataVars {
		if spatial(v) {
			keys = append(keys, name)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoSpatialVars
	}
	sort.Strings(keys)
	vars := make([]*cube.Variable, len(keys))
	for k, name := range keys {
		vars[k] = ds.DataVars[name]
	}
	return vars, nil
}

// copyNonSpatialCoords carries coordinates that do not depend on the
// source spatial dimensions (time axes and the like) into the result.
func copyNonSpatialCoords(src, dst *cube.Dataset, srcGM *grid.GridMapping) {
	xDim, yDim := srcGM.XYDimNames()
	for name, v := range src.Coords {
		usesSpatial := false
		for _, d := range v.Dims {
			if d == xDim || d == yDim {
				usesSpatial = true
				break
			}
		}
		if !usesSpatial && len(v.Dims) > 0 {
			dst.Coords[name] = v
		}
	}
}
