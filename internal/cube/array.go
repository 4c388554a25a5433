// Package cube holds the dataset-like containers the resampling core
// operates on: named variables with dimensions and attributes, backed by
// dense in-memory arrays or lazily computed chunked arrays.
package cube

import "fmt"

// Array is the minimal contract the core needs from an N-dimensional
// float64 array: its shape, its chunking (if any), and a way to
// materialize its values in row-major order.
type Array interface {
	Shape() []int

	// Chunks returns per-dimension chunk sizes, or nil if the array is
	// not chunked. Consumers use this to pick default tile sizes.
	Chunks() []int

	// Values materializes the whole array in row-major order. For chunked
	// arrays this computes and assembles all blocks.
	Values() []float64
}

// DenseArray is an eagerly materialized row-major array.
type DenseArray struct {
	shape  []int
	values []float64
}

// NewDense wraps values as a dense array of the given shape.
// The values slice is retained, not copied.
func NewDense(shape []int, values []float64) *DenseArray {
	n := Size(shape)
	if len(values) != n {
		panic(fmt.Sprintf("cube: shape %v requires %d values, got %d", shape, n, len(values)))
	}
	return &DenseArray{shape: shape, values: values}
}

// NewDenseFill creates a dense array of the given shape with every element
// set to fill.
func NewDenseFill(shape []int, fill float64) *DenseArray {
	values := make([]float64, Size(shape))
	if fill != 0 {
		for i := range values {
			values[i] = fill
		}
	}
	return &DenseArray{shape: shape, values: values}
}

func (a *DenseArray) Shape() []int     { return a.shape }
func (a *DenseArray) Chunks() []int    { return nil }
func (a *DenseArray) Values() []float64 { return a.values }

// ChunkedView declares a chunk layout on top of an already materialized
// array, e.g. for coordinates read from a chunked store. Values are served
// from the underlying array unchanged.
type ChunkedView struct {
	Array
	chunks []int
}

// WithChunks wraps arr with an explicit chunk layout. The layout must have
// one entry per dimension.
func WithChunks(arr Array, chunks []int) *ChunkedView {
	if len(chunks) != len(arr.Shape()) {
		panic(fmt.Sprintf("cube: chunk layout %v does not match shape %v", chunks, arr.Shape()))
	}
	return &ChunkedView{Array: arr, chunks: chunks}
}

func (a *ChunkedView) Chunks() []int { return a.chunks }

// Size returns the element count of a shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
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
