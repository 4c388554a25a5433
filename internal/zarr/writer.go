package zarr

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/pspoerri/rastercube/internal/cube"
)

// WriterOptions tunes WriteDataset. The zero value works.
type WriterOptions struct {
	// Level is the zstd compression level; zero means zstd's default.
	Level zstd.EncoderLevel

	// Workers bounds the chunk-writing pool. Zero means one per CPU.
	Workers int

	// Progress, when set, is called after every written or skipped chunk
	// with the running and total chunk counts. Called from worker
	// goroutines.
	Progress func(done, total int64)
}

// WriteDataset persists a dataset as a Zarr v2 group directory. Each
// variable keeps its array's chunk layout; chunks holding only the fill
// value are skipped entirely, which keeps sparse rectification output
// small on disk. Chunks are encoded and written by a worker pool.
func WriteDataset(dir string, ds *cube.Dataset, opts *WriterOptions) error {
	if opts == nil {
		opts = &WriterOptions{}
	}
	level := opts.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, groupFile), map[string]int{"zarr_format": zarrFormat}); err != nil {
		return err
	}
	if len(ds.Attrs) > 0 {
		if err := writeJSON(filepath.Join(dir, attrsFile), jsonSafeAttrs(ds.Attrs)); err != nil {
			return err
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return err
	}
	defer enc.Close()

	auxCoords := auxiliaryCoordNames(ds)

	// A job either slices a dense value array or pulls one lazy block;
	// blocks are computed inside the worker pool, never up front.
	type chunkJob struct {
		varDir string
		meta   *ArrayMeta
		values []float64
		blocks *cube.ChunkedArray
		tr, tc int
		idx    []int
		fill   float64
	}
	var jobs []chunkJob

	total := int64(0)
	addVar := func(v *cube.Variable, coordinates string) error {
		varDir := filepath.Join(dir, v.Name)
		if err := os.MkdirAll(varDir, 0o755); err != nil {
			return err
		}
		meta := metaFor(v)
		if err := writeJSON(filepath.Join(varDir, arrayFile), meta); err != nil {
			return err
		}
		attrs := jsonSafeAttrs(v.Attrs)
		if len(v.Dims) > 0 {
			attrs[dimsAttrName] = v.Dims
		}
		if coordinates != "" {
			attrs["coordinates"] = coordinates
		}
		if err := writeJSON(filepath.Join(varDir, attrsFile), attrs); err != nil {
			return err
		}

		fill := meta.fill()
		if ca, ok := v.Data.(*cube.ChunkedArray); ok {
			// Store chunks line up with the array's spatial tiles, so
			// each job pulls exactly one block.
			for tr := 0; tr < ca.NumTilesY(); tr++ {
				for tc := 0; tc < ca.NumTilesX(); tc++ {
					idx := make([]int, len(meta.Shape))
					idx[len(idx)-2] = tr
					idx[len(idx)-1] = tc
					jobs = append(jobs, chunkJob{
						varDir: varDir, meta: meta,
						blocks: ca, tr: tr, tc: tc,
						idx: idx, fill: fill,
					})
					total++
				}
			}
			return nil
		}

		values := v.Data.Values()
		if len(meta.Shape) == 0 {
			jobs = append(jobs, chunkJob{varDir: varDir, meta: meta, values: values, fill: fill})
			total++
			return nil
		}
		grid := chunkGrid(meta.Shape, meta.Chunks)
		idx := make([]int, len(grid))
		for {
			jobs = append(jobs, chunkJob{
				varDir: varDir,
				meta:   meta,
				values: values,
				idx:    append([]int(nil), idx...),
				fill:   fill,
			})
			total++
			if !nextChunkIndex(idx, grid) {
				break
			}
		}
		return nil
	}

	var coordNames, dataNames []string
	for name := range ds.Coords {
		coordNames = append(coordNames, name)
	}
	for name := range ds.DataVars {
		dataNames = append(dataNames, name)
	}
	sort.Strings(coordNames)
	sort.Strings(dataNames)
	for _, name := range coordNames {
		if err := addVar(ds.Coords[name], ""); err != nil {
			return err
		}
	}
	for _, name := range dataNames {
		if err := addVar(ds.DataVars[name], auxCoords); err != nil {
			return err
		}
	}

	jobCh := make(chan chunkJob, len(jobs))
	errCh := make(chan error, 1)
	var done int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				var err error
				if job.blocks != nil {
					err = writeBlockChunk(enc, job.varDir, job.meta, job.blocks, job.tr, job.tc, job.idx, job.fill)
				} else {
					err = writeChunk(enc, job.varDir, job.meta, job.values, job.idx, job.fill)
				}
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
				n := atomic.AddInt64(&done, 1)
				if opts.Progress != nil {
					opts.Progress(n, total)
				}
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// writeChunk extracts, pads, encodes, and writes one chunk. Chunks that
// contain nothing but fill are skipped.
func writeChunk(enc *zstd.Encoder, varDir string, meta *ArrayMeta, values []float64, idx []int, fill float64) error {
	dt, err := parseDtype(meta.Dtype)
	if err != nil {
		return err
	}

	var chunk []float64
	if len(meta.Shape) == 0 {
		chunk = []float64{values[0]}
	} else {
		chunk = make([]float64, cube.Size(meta.Chunks))
		for i := range chunk {
			chunk[i] = fill
		}
		start, count := chunkWindow(idx, meta.Shape, meta.Chunks)
		gatherWindow(chunk, rowMajorStrides(meta.Chunks), values, rowMajorStrides(meta.Shape), start, count)
	}

	if allFill(chunk, fill) {
		return nil
	}

	raw := encodeValues(chunk, dt)
	if meta.Compressor != nil {
		raw = enc.EncodeAll(raw, nil)
	}
	return os.WriteFile(filepath.Join(varDir, chunkFileName(idx)), raw, 0o644)
}

// writeBlockChunk encodes one lazily computed block. Block layout already
// matches the chunk layout except for clipped edge tiles, which are padded
// with fill to the full chunk extent.
func writeBlockChunk(enc *zstd.Encoder, varDir string, meta *ArrayMeta, arr *cube.ChunkedArray, tr, tc int, idx []int, fill float64) error {
	dt, err := parseDtype(meta.Dtype)
	if err != nil {
		return err
	}

	block := arr.Block(tr, tc)
	blockW, blockH := arr.BlockSize(tr, tc)
	n := len(meta.Chunks)
	tileW, tileH := meta.Chunks[n-1], meta.Chunks[n-2]

	chunk := block
	if blockW != tileW || blockH != tileH {
		lead := cube.Size(meta.Chunks[:n-2])
		chunk = make([]float64, cube.Size(meta.Chunks))
		for i := range chunk {
			chunk[i] = fill
		}
		for l := 0; l < lead; l++ {
			for by := 0; by < blockH; by++ {
				src := (l*blockH + by) * blockW
				dst := (l*tileH + by) * tileW
				copy(chunk[dst:dst+blockW], block[src:src+blockW])
			}
		}
	}

	if allFill(chunk, fill) {
		return nil
	}
	raw := encodeValues(chunk, dt)
	if meta.Compressor != nil {
		raw = enc.EncodeAll(raw, nil)
	}
	return os.WriteFile(filepath.Join(varDir, chunkFileName(idx)), raw, 0o644)
}

// gatherWindow is the write-side mirror of copyWindow: it pulls the
// clipped window out of the full array into a (padded) chunk buffer.
func gatherWindow(chunk []float64, chunkStrides []int, values []float64, strides []int, start, count []int) {
	n := len(count)
	runLen := count[n-1]
	iterateWindow(count[:n-1], func(pos []int) {
		src, dst := 0, 0
		for d, p := range pos {
			src += (start[d] + p) * strides[d]
			dst += p * chunkStrides[d]
		}
		src += start[n-1]
		copy(chunk[dst:dst+runLen], values[src:src+runLen])
	})
}

func allFill(values []float64, fill float64) bool {
	fillNaN := math.IsNaN(fill)
	for _, v := range values {
		if fillNaN {
			if !math.IsNaN(v) {
				return false
			}
		} else if v != fill {
			return false
		}
	}
	return true
}

func metaFor(v *cube.Variable) *ArrayMeta {
	shape := v.Shape()
	chunks := v.Data.Chunks()
	if len(chunks) != len(shape) {
		chunks = append([]int(nil), shape...)
	}
	var fillValue any
	if fv := v.FillValue(); math.IsNaN(fv) {
		fillValue = "NaN"
	} else {
		fillValue = fv
	}
	return &ArrayMeta{
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      dtypeFor(v.Dtype),
		Compressor: &CompressorMeta{ID: "zstd"},
		FillValue:  fillValue,
		Order:      "C",
		ZarrFormat: zarrFormat,
	}
}

// auxiliaryCoordNames lists coordinates that are not indexed by their own
// name, space separated, for the CF coordinates attribute.
func auxiliaryCoordNames(ds *cube.Dataset) string {
	var names []string
	for name, v := range ds.Coords {
		indexed := false
		for _, d := range v.Dims {
			if d == name {
				indexed = true
			}
		}
		if !indexed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// jsonSafeAttrs replaces values JSON cannot represent (NaN) so attribute
// files always marshal.
func jsonSafeAttrs(attrs cube.Attrs) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			out[k] = "NaN"
			continue
		}
		out[k] = v
	}
	return out
}
