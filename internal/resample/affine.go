package resample

import (
	"errors"
	"math"

	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/grid"
)

var (
	// ErrSourceNotRegular means the affine path was asked to transform
	// from an irregular grid, which needs full rectification instead.
	ErrSourceNotRegular = errors.New("resample: source grid mapping must be regular for an affine transform")

	// ErrCRSMismatch means source and target grids use different CRSes.
	ErrCRSMismatch = errors.New("resample: source and target grid mappings must share a CRS")
)

// AffineTransformDataset resamples a dataset between two regular grids in
// the same CRS. The mapping from target to source pixels is a closed-form
// scale and offset per axis, so no quad search is needed; values transfer
// by the same nearest-neighbor rule as rectification.
func AffineTransformDataset(ds *cube.Dataset, opts *RectifyOptions) (*cube.Dataset, *grid.GridMapping, error) {
	if opts == nil {
		opts = DefaultRectifyOptions()
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
	if !srcGM.IsRegular() {
		return nil, nil, ErrSourceNotRegular
	}

	dstGM := opts.TargetGM
	if dstGM == nil {
		dstGM = srcGM.WithTileSize(opts.TileSize)
	} else if !opts.TileSize.IsZero() {
		dstGM = dstGM.WithTileSize(opts.TileSize)
	}
	if !dstGM.IsRegular() {
		return nil, nil, ErrTargetNotRegular
	}
	if opts.IsJAxisUp != nil && *opts.IsJAxisUp != dstGM.IsJAxisUp() {
		dstGM = dstGM.WithJAxisUp(*opts.IsJAxisUp)
	}
	if !srcGM.CRS().Equal(dstGM.CRS()) {
		return nil, nil, ErrCRSMismatch
	}

	if !srcGM.XYBBox().Intersects(dstGM.XYBBox()) {
		return nil, nil, nil
	}

	vars, err := selectSpatialVars(ds, srcGM, opts.VarNames)
	if err != nil {
		return nil, nil, err
	}

	img := computeAffineIJImages(srcGM, dstGM, opts.Workers)

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
		dims := append(append([]string(nil), v.Dims[:n-2]...), yDim, xDim)

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
	if opts.EncodeCF {
		out.AddCoord(encodeGridMappingVar(dstGM, gmName))
	}
	return out, dstGM, nil
}

// computeAffineIJImages derives the fractional source position of every
// target pixel analytically from the two regular grids. Positions falling
// outside the source extent stay NaN. Rows are independent.
func computeAffineIJImages(srcGM, dstGM *grid.GridMapping, workers int) *ijImages {
	img := newIJImages(dstGM.Width(), dstGM.Height())
	srcBBox, dstBBox := srcGM.XYBBox(), dstGM.XYBBox()
	srcXRes, srcYRes := srcGM.XYRes()
	dstXRes, dstYRes := dstGM.XYRes()
	srcW, srcH := srcGM.Width(), srcGM.Height()

	// Per-column fractional source i, shared by all rows.
	fis := make([]float64, img.w)
	for i := range fis {
		x := dstBBox.MinX + (float64(i)+0.5)*dstXRes
		fi := (x-srcBBox.MinX)/srcXRes - 0.5
		if fi < -0.5 || fi > float64(srcW)-0.5 {
			fi = math.NaN()
		}
		fis[i] = fi
	}

	runTileJobs(img.h, workers, func(j int) {
		var y float64
		if dstGM.IsJAxisUp() {
			y = dstBBox.MinY + (float64(j)+0.5)*dstYRes
		} else {
			y = dstBBox.MaxY - (float64(j)+0.5)*dstYRes
		}
		var fj float64
		if srcGM.IsJAxisUp() {
			fj = (y-srcBBox.MinY)/srcYRes - 0.5
		} else {
			fj = (srcBBox.MaxY-y)/srcYRes - 0.5
		}
		if fj < -0.5 || fj > float64(srcH)-0.5 {
			fj = math.NaN()
		}
		row := j * img.w
		for i := range fis {
			if math.IsNaN(fj) || math.IsNaN(fis[i]) {
				continue
			}
			img.srcI[row+i] = fis[i]
			img.srcJ[row+i] = fj
		}
	})
	return img
}

// ResampleInSpace picks the cheapest correct path between two grid
// mappings: an affine transform when both are regular in the same CRS,
// full rectification otherwise.
func ResampleInSpace(ds *cube.Dataset, opts *RectifyOptions) (*cube.Dataset, *grid.GridMapping, error) {
	if opts == nil {
		opts = DefaultRectifyOptions()
	}
	srcGM := opts.SourceGM
	if srcGM == nil {
		var err error
		srcGM, err = grid.FromDataset(ds, nil)
		if err != nil {
			return nil, nil, err
		}
		o := *opts
		o.SourceGM = srcGM
		opts = &o
	}
	if srcGM.IsRegular() && (opts.TargetGM == nil || (opts.TargetGM.IsRegular() && srcGM.CRS().Equal(opts.TargetGM.CRS()))) {
		return AffineTransformDataset(ds, opts)
	}
	return RectifyDataset(ds, opts)
}
