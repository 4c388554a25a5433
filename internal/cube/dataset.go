package cube

import (
	"fmt"
	"math"
)

// Attrs holds variable or dataset attribute metadata.
type Attrs map[string]any

// Copy returns a shallow copy, so derived datasets can adjust attributes
// without mutating their source.
func (a Attrs) Copy() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Variable is a named N-dimensional array with dimension names and
// attributes. Spatially resolved variables carry their (y, x) dimensions
// as the trailing two.
type Variable struct {
	Name  string
	Dims  []string
	Attrs Attrs
	Data  Array

	// Dtype records the storage element type ("float64", "float32",
	// "int16", ...). In memory all values are float64; Dtype controls
	// persistence and fill-value semantics. Empty means "float64".
	Dtype string
}

// NewVariable creates a variable over a dense array.
func NewVariable(name string, dims []string, shape []int, values []float64) *Variable {
	if len(dims) != len(shape) {
		panic(fmt.Sprintf("cube: variable %q has %d dims but shape %v", name, len(dims), shape))
	}
	return &Variable{Name: name, Dims: dims, Attrs: Attrs{}, Data: NewDense(shape, values)}
}

func (v *Variable) Shape() []int { return v.Data.Shape() }
func (v *Variable) Rank() int    { return len(v.Data.Shape()) }

// FillValue returns the declared fill value for unmapped pixels, or NaN
// when the variable does not declare one.
func (v *Variable) FillValue() float64 {
	if v.Attrs != nil {
		if fv, ok := v.Attrs["_FillValue"]; ok {
			switch t := fv.(type) {
			case float64:
				return t
			case float32:
				return float64(t)
			case int:
				return float64(t)
			}
		}
	}
	return nan()
}

// Dataset is a container of named data variables and coordinate variables
// plus global attributes, mirroring the shape of common labeled-array
// formats without depending on any particular storage backend.
type Dataset struct {
	Attrs    Attrs
	Coords   map[string]*Variable
	DataVars map[string]*Variable
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Attrs:    Attrs{},
		Coords:   map[string]*Variable{},
		DataVars: map[string]*Variable{},
	}
}

// Var looks up a variable by name among data variables first, then coords.
func (d *Dataset) Var(name string) *Variable {
	if v, ok := d.DataVars[name]; ok {
		return v
	}
	return d.Coords[name]
}

// AddCoord registers a coordinate variable under its own name.
func (d *Dataset) AddCoord(v *Variable) { d.Coords[v.Name] = v }

// AddDataVar registers a data variable under its own name.
func (d *Dataset) AddDataVar(v *Variable) { d.DataVars[v.Name] = v }

// SizeOfDim returns the length of the named dimension by scanning all
// variables, or -1 if no variable uses it.
func (d *Dataset) SizeOfDim(dim string) int {
	for _, vars := range []map[string]*Variable{d.DataVars, d.Coords} {
		for _, v := range vars {
			for i, dn := range v.Dims {
				if dn == dim {
					return v.Shape()[i]
				}
			}
		}
	}
	return -1
}

// CropSpatial returns a copy of v restricted to the inclusive pixel-index
// rectangle [i0,i1] x [j0,j1] of its trailing (y, x) dimensions. Leading
// dimensions are preserved. The variable data is materialized.
func CropSpatial(v *Variable, i0, j0, i1, j1 int) *Variable {
	shape := v.Shape()
	n := len(shape)
	if n < 2 {
		panic(fmt.Sprintf("cube: cannot spatially crop %d-d variable %q", n, v.Name))
	}
	w := shape[n-1]
	h := shape[n-2]
	if i0 < 0 || j0 < 0 || i1 >= w || j1 >= h || i0 > i1 || j0 > j1 {
		panic(fmt.Sprintf("cube: crop [%d,%d]x[%d,%d] outside %dx%d", i0, i1, j0, j1, w, h))
	}

	cw := i1 - i0 + 1
	ch := j1 - j0 + 1
	lead := Size(shape[:n-2])
	src := v.Data.Values()
	dst := make([]float64, lead*ch*cw)
	for l := 0; l < lead; l++ {
		for j := 0; j < ch; j++ {
			s := (l*h+j0+j)*w + i0
			t := (l*ch+j)*cw
			copy(dst[t:t+cw], src[s:s+cw])
		}
	}

	newShape := make([]int, n)
	copy(newShape, shape)
	newShape[n-1] = cw
	newShape[n-2] = ch
	return &Variable{
		Name:  v.Name,
		Dims:  append([]string(nil), v.Dims...),
		Attrs: v.Attrs.Copy(),
		Data:  NewDense(newShape, dst),
		Dtype: v.Dtype,
	}
}

func nan() float64 { return math.NaN() }
