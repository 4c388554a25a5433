package resample

import (
	"math"

	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/grid"
)

// nearestIndex converts a fractional source coordinate into the nearest
// integer pixel index. Fractions above one half round up; the result is
// clamped into [0, n-1].
func nearestIndex(f float64, n int) int {
	i := int(f)
	if f-float64(i) > 0.5 {
		i++
	}
	return iclamp(i, 0, n-1)
}

// resampleValues maps source values onto the target grid through the
// index images using nearest-neighbor lookup. srcValues has shape
// [lead..., srcH, srcW]; the result has shape [lead..., dstH, dstW] with
// fill wherever the target is not covered. Rows of the output are
// independent, so the scan parallelizes over destination rows.
func resampleValues(srcValues []float64, srcW, srcH, lead int, img *ijImages, fill float64, workers int) []float64 {
	out := make([]float64, lead*img.h*img.w)
	runTileJobs(img.h, workers, func(dstJ int) {
		row := dstJ * img.w
		for dstI := 0; dstI < img.w; dstI++ {
			fi := img.srcI[row+dstI]
			if math.IsNaN(fi) {
				for l := 0; l < lead; l++ {
					out[(l*img.h+dstJ)*img.w+dstI] = fill
				}
				continue
			}
			si := nearestIndex(fi, srcW)
			sj := nearestIndex(img.srcJ[row+dstI], srcH)
			for l := 0; l < lead; l++ {
				out[(l*img.h+dstJ)*img.w+dstI] = srcValues[(l*srcH+sj)*srcW+si]
			}
		}
	})
	return out
}

// chunkedResample wraps the same lookup as a lazily computed chunked
// array over the target tiling. Blocks are pure functions of their tile
// position and are memoized by the array, so any pull order works.
func chunkedResample(srcValues []float64, srcW, srcH int, leadShape []int, img *ijImages, dstGM *grid.GridMapping, fill float64) *cube.ChunkedArray {
	lead := cube.Size(leadShape)
	shape := append(append([]int(nil), leadShape...), img.h, img.w)
	tile := dstGM.TileSize()

	return cube.NewChunked(shape, tile.W, tile.H, func(tileRow, tileCol, blockW, blockH int, block []float64) {
		x0 := tileCol * tile.W
		y0 := tileRow * tile.H
		for by := 0; by < blockH; by++ {
			row := (y0 + by) * img.w
			for bx := 0; bx < blockW; bx++ {
				fi := img.srcI[row+x0+bx]
				if math.IsNaN(fi) {
					for l := 0; l < lead; l++ {
						block[(l*blockH+by)*blockW+bx] = fill
					}
					continue
				}
				si := nearestIndex(fi, srcW)
				sj := nearestIndex(img.srcJ[row+x0+bx], srcH)
				for l := 0; l < lead; l++ {
					block[(l*blockH+by)*blockW+bx] = srcValues[(l*srcH+sj)*srcW+si]
				}
			}
		}
	})
}
