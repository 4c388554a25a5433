package zarr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/pspoerri/rastercube/internal/cube"
)

// DefaultChunkCacheSize bounds the number of decoded chunks kept in
// memory while assembling variables.
const DefaultChunkCacheSize = 128

// ErrNotFound reports a variable missing from the group.
var ErrNotFound = errors.New("zarr: variable not found")

// Reader reads a Zarr v2 group directory. Decoded chunks are cached in an
// LRU so interleaved reads of neighboring windows do not re-decompress.
type Reader struct {
	dir   string
	dec   *zstd.Decoder
	cache *lru.Cache[string, []float64]
}

// OpenReader opens a group directory written by WriteDataset or any
// compatible zarr tool. cacheSize <= 0 uses DefaultChunkCacheSize.
func OpenReader(dir string, cacheSize int) (*Reader, error) {
	var group struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := readJSON(filepath.Join(dir, groupFile), &group); err != nil {
		return nil, fmt.Errorf("zarr: %s is not a zarr group: %w", dir, err)
	}
	if group.ZarrFormat != zarrFormat {
		return nil, fmt.Errorf("zarr: unsupported group format %d", group.ZarrFormat)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultChunkCacheSize
	}
	cache, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, dec: dec, cache: cache}, nil
}

// Close releases the decompressor.
func (r *Reader) Close() {
	r.dec.Close()
}

// VarNames lists the arrays in the group in sorted order.
func (r *Reader) VarNames() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.dir, e.Name(), arrayFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadVariable materializes one array with its attributes and dimension
// names. The variable keeps the store's chunk layout so downstream tiling
// can follow it.
func (r *Reader) ReadVariable(name string) (*cube.Variable, error) {
	varDir := filepath.Join(r.dir, name)
	var meta ArrayMeta
	if err := readJSON(filepath.Join(varDir, arrayFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("zarr: variable %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("zarr: variable %q: %w", name, err)
	}

	attrs := cube.Attrs{}
	if err := readJSON(filepath.Join(varDir, attrsFile), &attrs); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	dims := dimsFromAttrs(attrs, len(meta.Shape))
	delete(attrs, dimsAttrName)

	values, err := r.readValues(name, &meta)
	if err != nil {
		return nil, err
	}

	data := cube.Array(cube.NewDense(meta.Shape, values))
	if !sameInts(meta.Chunks, meta.Shape) {
		data = cube.WithChunks(data, meta.Chunks)
	}
	return &cube.Variable{
		Name:  name,
		Dims:  dims,
		Attrs: attrs,
		Data:  data,
		Dtype: typeNameFor(meta.Dtype),
	}, nil
}

// ReadDataset reads the whole group. Arrays named after one of their own
// dimensions or listed in a data variable's coordinates attribute become
// coordinate variables.
func (r *Reader) ReadDataset() (*cube.Dataset, error) {
	ds := cube.NewDataset()
	if err := readJSON(filepath.Join(r.dir, attrsFile), &ds.Attrs); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	names, err := r.VarNames()
	if err != nil {
		return nil, err
	}
	vars := make(map[string]*cube.Variable, len(names))
	coordNames := map[string]bool{}
	for _, name := range names {
		v, err := r.ReadVariable(name)
		if err != nil {
			return nil, err
		}
		vars[name] = v
		for _, d := range v.Dims {
			if d == name {
				coordNames[name] = true
			}
		}
		if len(v.Dims) == 0 {
			// Scalar variables such as the CF grid mapping.
			coordNames[name] = true
		}
		if coords, ok := v.Attrs["coordinates"].(string); ok {
			for _, cn := range strings.Fields(coords) {
				coordNames[cn] = true
			}
		}
	}
	for name, v := range vars {
		delete(v.Attrs, "coordinates")
		if coordNames[name] {
			ds.AddCoord(v)
		} else {
			ds.AddDataVar(v)
		}
	}
	return ds, nil
}

// readValues assembles the full row-major value slice from all chunks.
// Missing chunk files materialize as fill value, per the zarr spec.
func (r *Reader) readValues(name string, meta *ArrayMeta) ([]float64, error) {
	dt, err := parseDtype(meta.Dtype)
	if err != nil {
		return nil, err
	}
	fill := meta.fill()
	out := make([]float64, cube.Size(meta.Shape))
	if len(meta.Shape) == 0 {
		chunk, err := r.readChunk(name, meta, dt, nil)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			out[0] = fill
		} else {
			out[0] = chunk[0]
		}
		return out, nil
	}
	strides := rowMajorStrides(meta.Shape)
	chunkStrides := rowMajorStrides(meta.Chunks)
	grid := chunkGrid(meta.Shape, meta.Chunks)

	idx := make([]int, len(grid))
	for {
		chunk, err := r.readChunk(name, meta, dt, idx)
		if err != nil {
			return nil, err
		}
		start, count := chunkWindow(idx, meta.Shape, meta.Chunks)
		if chunk == nil {
			fillWindow(out, strides, start, count, fill)
		} else {
			copyWindow(out, strides, start, chunk, chunkStrides, count)
		}
		if !nextChunkIndex(idx, grid) {
			break
		}
	}
	return out, nil
}

func (r *Reader) readChunk(name string, meta *ArrayMeta, dt dtypeInfo, idx []int) ([]float64, error) {
	key := name + "/" + chunkFileName(idx)
	if values, ok := r.cache.Get(key); ok {
		return values, nil
	}
	data, err := os.ReadFile(filepath.Join(r.dir, key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if meta.Compressor != nil {
		data, err = r.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zarr: decompressing %s: %w", key, err)
		}
	}
	values, err := decodeValues(data, dt, cube.Size(meta.Chunks))
	if err != nil {
		return nil, fmt.Errorf("zarr: %s: %w", key, err)
	}
	r.cache.Add(key, values)
	return values, nil
}

// copyWindow copies the clipped chunk window into the output array,
// run by run along the last dimension.
func copyWindow(out []float64, outStrides []int, start []int, chunk []float64, chunkStrides []int, count []int) {
	n := len(count)
	runLen := count[n-1]
	iterateWindow(count[:n-1], func(pos []int) {
		src, dst := 0, 0
		for d, p := range pos {
			src += p * chunkStrides[d]
			dst += (start[d] + p) * outStrides[d]
		}
		dst += start[n-1]
		copy(out[dst:dst+runLen], chunk[src:src+runLen])
	})
}

func fillWindow(out []float64, outStrides []int, start, count []int, fill float64) {
	n := len(count)
	runLen := count[n-1]
	iterateWindow(count[:n-1], func(pos []int) {
		dst := start[n-1]
		for d, p := range pos {
			dst += (start[d] + p) * outStrides[d]
		}
		for i := 0; i < runLen; i++ {
			out[dst+i] = fill
		}
	})
}

// iterateWindow calls fn for every position of a row-major iteration over
// the given extents. Zero dimensions means a single call at the origin.
func iterateWindow(extents []int, fn func(pos []int)) {
	pos := make([]int, len(extents))
	for {
		fn(pos)
		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < extents[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

func dimsFromAttrs(attrs cube.Attrs, rank int) []string {
	if raw, ok := attrs[dimsAttrName].([]any); ok && len(raw) == rank {
		dims := make([]string, rank)
		good := true
		for i, d := range raw {
			s, ok := d.(string)
			if !ok {
				good = false
				break
			}
			dims[i] = s
		}
		if good {
			return dims
		}
	}
	dims := make([]string, rank)
	for i := range dims {
		dims[i] = fmt.Sprintf("dim_%d", i)
	}
	return dims
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
