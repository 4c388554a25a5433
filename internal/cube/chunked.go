package cube

import (
	"fmt"
	"sync"
)

// BlockFunc computes one spatial block of a chunked array. The block slice
// covers all leading (non-spatial) dimensions and blockH x blockW spatial
// elements in row-major order; the function must fill it completely.
type BlockFunc func(tileRow, tileCol int, blockW, blockH int, block []float64)

// ChunkedArray is a lazily computed array tiled over its trailing two
// (y, x) dimensions. Each block is an independent pure function of its
// tile indices, computed at most once and memoized, so blocks may be pulled
// concurrently by any number of goroutines in any order. Assembly into a
// full value slice is deterministic regardless of completion order.
type ChunkedArray struct {
	shape  []int
	tileW  int
	tileH  int
	fn     BlockFunc
	blocks []chunkBlock
}

type chunkBlock struct {
	once   sync.Once
	values []float64
}

// NewChunked creates a chunked array of the given shape (at least 2-D,
// trailing dims are y and x) with the given spatial tile size.
func NewChunked(shape []int, tileW, tileH int, fn BlockFunc) *ChunkedArray {
	if len(shape) < 2 {
		panic(fmt.Sprintf("cube: chunked array needs at least 2 dims, got shape %v", shape))
	}
	if tileW <= 0 || tileH <= 0 {
		panic(fmt.Sprintf("cube: invalid tile size %dx%d", tileW, tileH))
	}
	a := &ChunkedArray{shape: shape, tileW: tileW, tileH: tileH, fn: fn}
	a.blocks = make([]chunkBlock, a.NumTilesX()*a.NumTilesY())
	return a
}

func (a *ChunkedArray) Shape() []int { return a.shape }

func (a *ChunkedArray) width() int  { return a.shape[len(a.shape)-1] }
func (a *ChunkedArray) height() int { return a.shape[len(a.shape)-2] }

// NumTilesX returns the tile count along x, including any partial edge tile.
func (a *ChunkedArray) NumTilesX() int { return (a.width() + a.tileW - 1) / a.tileW }

// NumTilesY returns the tile count along y, including any partial edge tile.
func (a *ChunkedArray) NumTilesY() int { return (a.height() + a.tileH - 1) / a.tileH }

// Chunks returns the chunk sizes per dimension: leading dims are unchunked
// (chunk == dim), trailing dims are the spatial tile size.
func (a *ChunkedArray) Chunks() []int {
	chunks := make([]int, len(a.shape))
	copy(chunks, a.shape)
	chunks[len(chunks)-1] = a.tileW
	chunks[len(chunks)-2] = a.tileH
	return chunks
}

// BlockSize returns the clipped width and height of the block at the given
// tile position.
func (a *ChunkedArray) BlockSize(tileRow, tileCol int) (blockW, blockH int) {
	blockW = a.tileW
	if (tileCol+1)*a.tileW > a.width() {
		blockW = a.width() - tileCol*a.tileW
	}
	blockH = a.tileH
	if (tileRow+1)*a.tileH > a.height() {
		blockH = a.height() - tileRow*a.tileH
	}
	return blockW, blockH
}

// Block computes (once) and returns the block at the given tile position.
// The returned slice is shared; callers must not modify it.
func (a *ChunkedArray) Block(tileRow, tileCol int) []float64 {
	b := &a.blocks[tileRow*a.NumTilesX()+tileCol]
	b.once.Do(func() {
		blockW, blockH := a.BlockSize(tileRow, tileCol)
		lead := Size(a.shape[:len(a.shape)-2])
		values := make([]float64, lead*blockH*blockW)
		a.fn(tileRow, tileCol, blockW, blockH, values)
		b.values = values
	})
	return b.values
}

// Values assembles all blocks into a single row-major slice.
func (a *ChunkedArray) Values() []float64 {
	w, h := a.width(), a.height()
	lead := Size(a.shape[:len(a.shape)-2])
	out := make([]float64, lead*h*w)

	for tr := 0; tr < a.NumTilesY(); tr++ {
		for tc := 0; tc < a.NumTilesX(); tc++ {
			block := a.Block(tr, tc)
			blockW, blockH := a.BlockSize(tr, tc)
			y0 := tr * a.tileH
			x0 := tc * a.tileW
			for l := 0; l < lead; l++ {
				for by := 0; by < blockH; by++ {
					src := (l*blockH+by)*blockW
					dst := (l*h+y0+by)*w + x0
					copy(out[dst:dst+blockW], block[src:src+blockW])
				}
			}
		}
	}
	return out
}
