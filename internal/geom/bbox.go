package geom

import (
	"math"
	"runtime"
	"sync"
)

// IJBBox is an inclusive pixel-index rectangle (IMin, JMin, IMax, JMax).
// The sentinel value -1 in every field means "no pixel matched".
type IJBBox [4]int

// EmptyIJBBox is the no-overlap sentinel.
var EmptyIJBBox = IJBBox{-1, -1, -1, -1}

// IsEmpty reports whether the box is the no-overlap sentinel.
func (b IJBBox) IsEmpty() bool { return b[0] == -1 }

// ComputeXYBBox reduces a (width x height) pair of x/y coordinate images to
// their joint bounding box. The reduction runs tile by tile so arbitrarily
// large coordinate images never need a single monolithic pass: each worker
// reduces whole tiles, NaN coordinates are skipped via +/-Inf sentinels,
// and tiles without any finite coordinate contribute nothing. If no finite
// coordinate exists at all, the returned bounds are all NaN.
func ComputeXYBBox(xImg, yImg []float64, width, height, tileW, tileH, workers int) Bounds {
	if tileW <= 0 || tileW > width {
		tileW = width
	}
	if tileH <= 0 || tileH > height {
		tileH = height
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	numTilesX := (width + tileW - 1) / tileW
	numTilesY := (height + tileH - 1) / tileH
	numTiles := numTilesX * numTilesY
	if workers > numTiles {
		workers = numTiles
	}

	partial := make([]Bounds, numTiles)
	tiles := make(chan int, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tiles {
				ty := t / numTilesX
				tx := t % numTilesX
				x0 := tx * tileW
				y0 := ty * tileH
				x1 := min(x0+tileW, width)
				y1 := min(y0+tileH, height)
				partial[t] = reduceTile(xImg, yImg, width, x0, y0, x1, y1)
			}
		}()
	}
	for t := 0; t < numTiles; t++ {
		tiles <- t
	}
	close(tiles)
	wg.Wait()

	// Pairwise aggregate of the per-tile results.
	agg := infBounds()
	for _, p := range partial {
		agg = Bounds{
			MinX: math.Min(agg.MinX, p.MinX),
			MinY: math.Min(agg.MinY, p.MinY),
			MaxX: math.Max(agg.MaxX, p.MaxX),
			MaxY: math.Max(agg.MaxY, p.MaxY),
		}
	}
	if math.IsInf(agg.MinX, +1) || math.IsInf(agg.MaxX, -1) {
		n := math.NaN()
		return Bounds{n, n, n, n}
	}
	return agg
}

func reduceTile(xImg, yImg []float64, width, x0, y0, x1, y1 int) Bounds {
	b := infBounds()
	for y := y0; y < y1; y++ {
		row := y * width
		for x := x0; x < x1; x++ {
			xv := xImg[row+x]
			yv := yImg[row+x]
			if math.IsNaN(xv) || math.IsNaN(yv) {
				continue
			}
			if xv < b.MinX {
				b.MinX = xv
			}
			if xv > b.MaxX {
				b.MaxX = xv
			}
			if yv < b.MinY {
				b.MinY = yv
			}
			if yv > b.MaxY {
				b.MaxY = yv
			}
		}
	}
	return b
}

func infBounds() Bounds {
	return Bounds{
		MinX: math.Inf(+1), MinY: math.Inf(+1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// ComputeIJBBoxes finds, for each query rectangle, the tight pixel-index
// rectangle of the coordinate image whose coordinates fall inside the query
// expanded by xyBorder CRS units, then grows the result by ijBorder pixels
// clamped to the image. Boxes that match nothing come back as the -1
// sentinel. The per-box scans are brute force over the whole coordinate
// image and run in parallel over the boxes: each box writes only its own
// output slot.
func ComputeIJBBoxes(xImg, yImg []float64, width, height int, xyBoxes []Bounds, xyBorder float64, ijBorder int, workers int) []IJBBox {
	out := make([]IJBBox, len(xyBoxes))
	if len(xyBoxes) == 0 {
		return out
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > len(xyBoxes) {
		workers = len(xyBoxes)
	}

	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				out[k] = computeIJBBox(xImg, yImg, width, height, xyBoxes[k].Expand(xyBorder), ijBorder)
			}
		}()
	}
	for k := range xyBoxes {
		jobs <- k
	}
	close(jobs)
	wg.Wait()
	return out
}

func computeIJBBox(xImg, yImg []float64, width, height int, box Bounds, ijBorder int) IJBBox {
	bbox := EmptyIJBBox
	for j := 0; j < height; j++ {
		row := j * width
		for i := 0; i < width; i++ {
			// Positive comparisons so NaN coordinates never match a box.
			x := xImg[row+i]
			if !(x >= box.MinX && x <= box.MaxX) {
				continue
			}
			y := yImg[row+i]
			if !(y >= box.MinY && y <= box.MaxY) {
				continue
			}
			if bbox[0] < 0 || i < bbox[0] {
				bbox[0] = i
			}
			if bbox[1] < 0 || j < bbox[1] {
				bbox[1] = j
			}
			if i > bbox[2] {
				bbox[2] = i
			}
			if j > bbox[3] {
				bbox[3] = j
			}
		}
	}
	if ijBorder != 0 && bbox[0] != -1 {
		bbox[0] = max(bbox[0]-ijBorder, 0)
		bbox[1] = max(bbox[1]-ijBorder, 0)
		bbox[2] = min(bbox[2]+ijBorder, width-1)
		bbox[3] = min(bbox[3]+ijBorder, height-1)
	}
	return bbox
}
