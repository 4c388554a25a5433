// Package resample maps datasets between grid mappings: rectification of
// irregular (swath-style) grids onto regular target grids, and fast
// affine transforms between regular grids sharing a CRS.
package resample

import (
	"math"

	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/geom"
	"github.com/pspoerri/rastercube/internal/grid"
)

// fdet is twice the signed area of triangle (p0, p1, p2). NaN corners
// propagate and disqualify the quad.
func fdet(px0, py0, px1, py1, px2, py2 float64) float64 {
	return (px0-px1)*(py0-py2) - (px0-px2)*(py0-py1)
}

// fu is the numerator of the first barycentric-like coordinate of (px, py)
// in the triangle spanned at (px0, py0) with v-neighbor (px2, py2).
func fu(px, py, px0, py0, px2, py2 float64) float64 {
	return (px0-px)*(py0-py2) - (py0-py)*(px0-px2)
}

// fv is the numerator of the second coordinate, using the u-neighbor
// (px1, py1).
func fv(px, py, px0, py0, px1, py1 float64) float64 {
	return (py0-py)*(px0-px1) - (px0-px)*(py0-py1)
}

func fclamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func iclamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ijImageParams describes one index-image computation: a (cropped) source
// coordinate image and the target pixel geometry it is mapped onto.
// dstYScale is negative for the usual top-down row order, with dstYOff at
// the top edge.
type ijImageParams struct {
	srcXImg, srcYImg []float64
	srcW, srcH       int

	// Offsets added to the fractional source indices written out, so a
	// cropped source window still yields indices into the full image.
	srcIOff, srcJOff float64

	dstXOff, dstYOff     float64
	dstXScale, dstYScale float64
	dstW, dstH           int

	uvDelta float64
}

// computeIJImages fills dstSrcI and dstSrcJ (length dstW*dstH, pre-filled
// with NaN) with fractional source pixel coordinates for every target
// pixel covered by the source grid. Each source quad is split into two
// triangles and inverted linearly; a target pixel center inside either
// triangle (within uvDelta tolerance) gets the interpolated source
// position.
//
// Distinct source quads can cover the same target pixel near fold-overs,
// so the scan writes sequentially; callers parallelize across disjoint
// target tiles instead.
func computeIJImages(p ijImageParams, dstSrcI, dstSrcJ []float64) {
	for j0 := 0; j0 < p.srcH-1; j0++ {
		computeIJImagesForSourceLine(j0, p, dstSrcI, dstSrcJ)
	}
}

func computeIJImagesForSourceLine(j0 int, p ijImageParams, dstSrcI, dstSrcJ []float64) {
	uMin := -p.uvDelta
	uvMax := 1 + 2*p.uvDelta

	row0 := j0 * p.srcW
	row1 := row0 + p.srcW
	for i0 := 0; i0 < p.srcW-1; i0++ {
		// Quad corners: p0 at (i0, j0), p1 its i-neighbor, p2 its
		// j-neighbor, p3 the diagonal.
		p0x, p0y := p.srcXImg[row0+i0], p.srcYImg[row0+i0]
		p1x, p1y := p.srcXImg[row0+i0+1], p.srcYImg[row0+i0+1]
		p2x, p2y := p.srcXImg[row1+i0], p.srcYImg[row1+i0]
		p3x, p3y := p.srcXImg[row1+i0+1], p.srcYImg[row1+i0+1]

		detA := fdet(p0x, p0y, p1x, p1y, p2x, p2y)
		detB := fdet(p3x, p3y, p2x, p2y, p1x, p1y)
		if math.IsNaN(detA) || math.IsNaN(detB) {
			continue
		}

		// Target pixel range touched by the quad's corners.
		iLo, iHi := dstPixelRange(p.dstXOff, p.dstXScale, p0x, p1x, p2x, p3x)
		jLo, jHi := dstPixelRange(p.dstYOff, p.dstYScale, p0y, p1y, p2y, p3y)
		if iHi < 0 || iLo >= p.dstW || jHi < 0 || jLo >= p.dstH {
			continue
		}
		iLo = iclamp(iLo, 0, p.dstW-1)
		iHi = iclamp(iHi, 0, p.dstW-1)
		jLo = iclamp(jLo, 0, p.dstH-1)
		jHi = iclamp(jHi, 0, p.dstH-1)

		for dstJ := jLo; dstJ <= jHi; dstJ++ {
			y := p.dstYOff + (float64(dstJ)+0.5)*p.dstYScale
			out := dstJ * p.dstW
			for dstI := iLo; dstI <= iHi; dstI++ {
				x := p.dstXOff + (float64(dstI)+0.5)*p.dstXScale

				srcI, srcJ := math.NaN(), math.NaN()
				if detA != 0 {
					u := fu(x, y, p0x, p0y, p2x, p2y) / detA
					v := fv(x, y, p0x, p0y, p1x, p1y) / detA
					if u >= uMin && v >= uMin && u+v <= uvMax {
						srcI = float64(i0) + fclamp(u, 0, 1)
						srcJ = float64(j0) + fclamp(v, 0, 1)
					}
				}
				if math.IsNaN(srcI) && detB != 0 {
					u := fu(x, y, p3x, p3y, p1x, p1y) / detB
					v := fv(x, y, p3x, p3y, p2x, p2y) / detB
					if u >= uMin && v >= uMin && u+v <= uvMax {
						srcI = float64(i0+1) - fclamp(u, 0, 1)
						srcJ = float64(j0+1) - fclamp(v, 0, 1)
					}
				}
				if !math.IsNaN(srcI) {
					dstSrcI[out+dstI] = p.srcIOff + srcI
					dstSrcJ[out+dstI] = p.srcJOff + srcJ
				}
			}
		}
	}
}

// dstPixelRange maps four corner coordinates onto the inclusive pixel
// index span they touch. A negative scale (top-down y) flips ordering,
// handled by taking min and max over the floors.
func dstPixelRange(off, scale float64, c0, c1, c2, c3 float64) (lo, hi int) {
	f0 := math.Floor((c0 - off) / scale)
	f1 := math.Floor((c1 - off) / scale)
	f2 := math.Floor((c2 - off) / scale)
	f3 := math.Floor((c3 - off) / scale)
	lo = int(math.Min(math.Min(f0, f1), math.Min(f2, f3)))
	hi = int(math.Max(math.Max(f0, f1), math.Max(f2, f3)))
	return lo, hi
}

// ijImages holds the fractional source-pixel position of every target
// pixel, NaN where the source does not cover the target.
type ijImages struct {
	srcI, srcJ []float64
	w, h       int
}

func newIJImages(w, h int) *ijImages {
	img := &ijImages{
		srcI: make([]float64, w*h),
		srcJ: make([]float64, w*h),
		w:    w,
		h:    h,
	}
	for i := range img.srcI {
		img.srcI[i] = math.NaN()
		img.srcJ[i] = math.NaN()
	}
	return img
}

// sourceView is the (possibly cropped) source coordinate image the
// rectification kernels read from. Index images refer to this window.
type sourceView struct {
	xImg, yImg []float64
	w, h       int
}

// computeDenseIJImages rectifies the whole target extent in one pass.
func computeDenseIJImages(src sourceView, dstGM *grid.GridMapping, uvDelta float64) *ijImages {
	dst := newIJImages(dstGM.Width(), dstGM.Height())
	bbox := dstGM.XYBBox()
	xRes, yRes := dstGM.XYRes()

	p := ijImageParams{
		srcXImg: src.xImg, srcYImg: src.yImg,
		srcW: src.w, srcH: src.h,
		dstXOff: bbox.MinX, dstXScale: xRes,
		dstW: dstGM.Width(), dstH: dstGM.Height(),
		uvDelta: uvDelta,
	}
	if dstGM.IsJAxisUp() {
		p.dstYOff, p.dstYScale = bbox.MinY, yRes
	} else {
		p.dstYOff, p.dstYScale = bbox.MaxY, -yRes
	}
	computeIJImages(p, dst.srcI, dst.srcJ)
	return dst
}

// computeTiledIJImages rectifies tile by tile. For every target tile the
// relevant source window is located first, so each tile touches only the
// source pixels that can map into it. Tiles write to disjoint slices and
// are processed by a worker pool.
func computeTiledIJImages(src sourceView, dstGM *grid.GridMapping, uvDelta float64, workers int) *ijImages {
	dst := newIJImages(dstGM.Width(), dstGM.Height())

	xyBoxes := dstGM.XYBBoxes()
	ijBoxes := geom.ComputeIJBBoxes(src.xImg, src.yImg, src.w, src.h, xyBoxes, tileXYBorder(dstGM), 1, workers)

	ntx := dstGM.NumTilesX()
	tileW, tileH := dstGM.TileSize().W, dstGM.TileSize().H
	bbox := dstGM.XYBBox()
	xRes, yRes := dstGM.XYRes()

	runTileJobs(len(ijBoxes), workers, func(t int) {
		ijBox := ijBoxes[t]
		if ijBox.IsEmpty() {
			return
		}
		tr, tc := t/ntx, t%ntx
		i0, j0 := ijBox[0], ijBox[1]
		cw := ijBox[2] - i0 + 1
		ch := ijBox[3] - j0 + 1

		dstI0 := tc * tileW
		dstJ0 := tr * tileH
		blockW := min(tileW, dstGM.Width()-dstI0)
		blockH := min(tileH, dstGM.Height()-dstJ0)

		blockI := make([]float64, blockW*blockH)
		blockJ := make([]float64, blockW*blockH)
		for i := range blockI {
			blockI[i] = math.NaN()
			blockJ[i] = math.NaN()
		}

		p := ijImageParams{
			srcXImg: cropImage(src.xImg, src.w, i0, j0, cw, ch),
			srcYImg: cropImage(src.yImg, src.w, i0, j0, cw, ch),
			srcW:    cw, srcH: ch,
			srcIOff: float64(i0), srcJOff: float64(j0),
			dstXOff:   bbox.MinX + float64(dstI0)*xRes,
			dstXScale: xRes,
			dstW:      blockW, dstH: blockH,
			uvDelta: uvDelta,
		}
		if dstGM.IsJAxisUp() {
			p.dstYOff = bbox.MinY + float64(dstJ0)*yRes
			p.dstYScale = yRes
		} else {
			p.dstYOff = bbox.MaxY - float64(dstJ0)*yRes
			p.dstYScale = -yRes
		}
		computeIJImages(p, blockI, blockJ)

		for by := 0; by < blockH; by++ {
			src := by * blockW
			out := (dstJ0+by)*dst.w + dstI0
			copy(dst.srcI[out:out+blockW], blockI[src:src+blockW])
			copy(dst.srcJ[out:out+blockW], blockJ[src:src+blockW])
		}
	})
	return dst
}

// tileXYBorder is the CRS-space margin added around each target tile when
// locating its source window. Two target pixels on each side absorbs the
// mismatch between source and target pixel footprints.
func tileXYBorder(dstGM *grid.GridMapping) float64 {
	xRes, yRes := dstGM.XYRes()
	bbox := dstGM.XYBBox()
	b := math.Min(2*float64(dstGM.NumTilesX())*xRes, 2*float64(dstGM.NumTilesY())*yRes)
	return math.Min(b, math.Min(bbox.Width()/2, bbox.Height()/2))
}

func cropImage(img []float64, width, i0, j0, cw, ch int) []float64 {
	out := make([]float64, cw*ch)
	for j := 0; j < ch; j++ {
		src := (j0+j)*width + i0
		copy(out[j*cw:(j+1)*cw], img[src:src+cw])
	}
	return out
}

// toVariables exposes the index images as a pair of float64 variables over
// the target dimensions, used when callers ask for the mapping itself.
func (img *ijImages) toVariables(iName, jName, xDim, yDim string) []*cube.Variable {
	dims := []string{yDim, xDim}
	shape := []int{img.h, img.w}
	return []*cube.Variable{
		cube.NewVariable(iName, dims, shape, img.srcI),
		cube.NewVariable(jName, dims, shape, img.srcJ),
	}
}

// sourceSubset finds the inclusive source window that can contribute to
// the target bbox, with a one-pixel index margin. The empty sentinel means
// no overlap.
func sourceSubset(srcGM, dstGM *grid.GridMapping, workers int) geom.IJBBox {
	// Half a target pixel in each axis, so border pixels of the target
	// still find their source quads.
	xRes, yRes := dstGM.XYRes()
	border := 0.5 * (xRes + yRes)
	boxes := srcGM.IjBBoxesFromXYBBoxes([]geom.Bounds{dstGM.XYBBox()}, border, 1, workers)
	return boxes[0]
}
