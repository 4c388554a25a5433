package zarr

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pspoerri/rastercube/internal/cube"
)

func testDataset() *cube.Dataset {
	ds := cube.NewDataset()
	ds.Attrs["title"] = "test cube"

	ds.AddCoord(cube.NewVariable("lon", []string{"lon"}, []int{6}, []float64{0.5, 1.5, 2.5, 3.5, 4.5, 5.5}))
	ds.AddCoord(cube.NewVariable("lat", []string{"lat"}, []int{4}, []float64{3.5, 2.5, 1.5, 0.5}))

	values := make([]float64, 24)
	for i := range values {
		values[i] = float64(i)
	}
	// Upper-left corner is a hole.
	values[0] = math.NaN()
	band := &cube.Variable{
		Name:  "band",
		Dims:  []string{"lat", "lon"},
		Attrs: cube.Attrs{"units": "K"},
		Data:  cube.WithChunks(cube.NewDense([]int{4, 6}, values), []int{2, 3}),
	}
	ds.AddDataVar(band)

	crs := &cube.Variable{
		Name:  "crs",
		Attrs: cube.Attrs{"grid_mapping_name": "latitude_longitude"},
		Data:  cube.NewDense(nil, []float64{0}),
	}
	ds.AddCoord(crs)
	return ds
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds := testDataset()
	if err := WriteDataset(dir, ds, nil); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}

	r, err := OpenReader(dir, 0)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	got, err := r.ReadDataset()
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if got.Attrs["title"] != "test cube" {
		t.Errorf("group attrs = %v", got.Attrs)
	}
	for _, name := range []string{"lon", "lat", "crs"} {
		if got.Coords[name] == nil {
			t.Errorf("coordinate %q missing or misclassified", name)
		}
	}
	band := got.DataVars["band"]
	if band == nil {
		t.Fatal("band should be a data variable")
	}
	if band.Dims[0] != "lat" || band.Dims[1] != "lon" {
		t.Errorf("band dims = %v", band.Dims)
	}
	if band.Attrs["units"] != "K" {
		t.Errorf("band attrs = %v", band.Attrs)
	}
	want := ds.DataVars["band"].Data.Values()
	have := band.Data.Values()
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(have[i]) || (!math.IsNaN(want[i]) && want[i] != have[i]) {
			t.Fatalf("band[%d] = %v, want %v", i, have[i], want[i])
		}
	}
	if chunks := band.Data.Chunks(); len(chunks) != 2 || chunks[0] != 2 || chunks[1] != 3 {
		t.Errorf("chunk layout = %v, want [2 3]", chunks)
	}
	if crs := got.Coords["crs"]; crs.Attrs["grid_mapping_name"] != "latitude_longitude" {
		t.Errorf("crs attrs = %v", crs.Attrs)
	}
}

func TestWriteSkipsAllFillChunks(t *testing.T) {
	dir := t.TempDir()
	ds := cube.NewDataset()
	values := make([]float64, 16)
	for i := range values {
		values[i] = math.NaN()
	}
	// Only the last chunk holds data.
	values[15] = 7
	ds.AddDataVar(&cube.Variable{
		Name:  "sparse",
		Dims:  []string{"y", "x"},
		Attrs: cube.Attrs{},
		Data:  cube.WithChunks(cube.NewDense([]int{4, 4}, values), []int{2, 2}),
	})
	if err := WriteDataset(dir, ds, nil); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sparse", "0.0")); !os.IsNotExist(err) {
		t.Error("all-fill chunk 0.0 should not be written")
	}
	if _, err := os.Stat(filepath.Join(dir, "sparse", "1.1")); err != nil {
		t.Errorf("data chunk 1.1 missing: %v", err)
	}

	r, err := OpenReader(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	v, err := r.ReadVariable("sparse")
	if err != nil {
		t.Fatalf("ReadVariable: %v", err)
	}
	got := v.Data.Values()
	if !math.IsNaN(got[0]) {
		t.Errorf("missing chunk should read as fill, got %v", got[0])
	}
	if got[15] != 7 {
		t.Errorf("value = %v, want 7", got[15])
	}
}

func TestDtypeRoundTrip(t *testing.T) {
	tests := []struct {
		dtype  string
		values []float64
	}{
		{"float32", []float64{0, 1.5, -2.25, 1000}},
		{"int16", []float64{-3, 0, 7, 32000}},
		{"uint8", []float64{0, 1, 128, 255}},
		{"", []float64{0.1, -0.2, 1e12, -4}},
	}
	for _, tt := range tests {
		name := tt.dtype
		if name == "" {
			name = "float64"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			ds := cube.NewDataset()
			ds.AddDataVar(&cube.Variable{
				Name:  "v",
				Dims:  []string{"x"},
				Attrs: cube.Attrs{"_FillValue": -1.0},
				Data:  cube.NewDense([]int{len(tt.values)}, tt.values),
				Dtype: tt.dtype,
			})
			if err := WriteDataset(dir, ds, nil); err != nil {
				t.Fatalf("WriteDataset: %v", err)
			}
			r, err := OpenReader(dir, 0)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			v, err := r.ReadVariable("v")
			if err != nil {
				t.Fatalf("ReadVariable: %v", err)
			}
			if v.Dtype != name {
				t.Errorf("dtype = %q, want %q", v.Dtype, name)
			}
			got := v.Data.Values()
			for i := range tt.values {
				if got[i] != tt.values[i] {
					t.Errorf("value[%d] = %v, want %v", i, got[i], tt.values[i])
				}
			}
		})
	}
}

func TestParseDtype(t *testing.T) {
	valid := []string{"<f8", "<f4", "<i2", "<i4", "<i8", "<u2", "|u1", "|i1"}
	for _, s := range valid {
		if _, err := parseDtype(s); err != nil {
			t.Errorf("parseDtype(%q) failed: %v", s, err)
		}
	}
	invalid := []string{"", ">f8", "<f2", "<x4", "|i2", "f8"}
	for _, s := range invalid {
		if _, err := parseDtype(s); err == nil {
			t.Errorf("parseDtype(%q) should fail", s)
		}
	}
}

func TestOpenReaderNotAGroup(t *testing.T) {
	if _, err := OpenReader(t.TempDir(), 0); err == nil {
		t.Error("opening an empty directory should fail")
	}
}

func TestReadVariableNotFound(t *testing.T) {
	dir := t.TempDir()
	if err := WriteDataset(dir, testDataset(), nil); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	r, err := OpenReader(dir, 0)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadVariable("no_such_var"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadVariable(missing) = %v, want ErrNotFound", err)
	}
}

func TestWriteDatasetPullsChunkedBlocks(t *testing.T) {
	dir := t.TempDir()

	// 2x5x6 lazy array, spatial tiles 4x2 with clipped edge tiles.
	var computed atomic.Int64
	arr := cube.NewChunked([]int{2, 5, 6}, 4, 2, func(tr, tc, bw, bh int, block []float64) {
		computed.Add(1)
		for l := 0; l < 2; l++ {
			for by := 0; by < bh; by++ {
				for bx := 0; bx < bw; bx++ {
					v := float64(l*100 + (tr*2+by)*10 + tc*4 + bx)
					if tr == 1 && tc == 1 {
						v = math.NaN()
					}
					block[(l*bh+by)*bw+bx] = v
				}
			}
		}
	})
	ds := cube.NewDataset()
	ds.AddDataVar(&cube.Variable{Name: "band", Dims: []string{"time", "y", "x"}, Attrs: cube.Attrs{}, Data: arr})

	if err := WriteDataset(dir, ds, &WriterOptions{Workers: 3}); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if got := computed.Load(); got != 6 {
		t.Errorf("computed %d blocks, want 6 (one per store chunk)", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "band", "0.1.1")); !os.IsNotExist(err) {
		t.Error("all-fill block should not produce a chunk file")
	}
	if _, err := os.Stat(filepath.Join(dir, "band", "0.2.1")); err != nil {
		t.Errorf("clipped edge chunk missing: %v", err)
	}

	r, err := OpenReader(dir, 0)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	v, err := r.ReadVariable("band")
	if err != nil {
		t.Fatalf("ReadVariable: %v", err)
	}
	got := v.Data.Values()
	for l := 0; l < 2; l++ {
		for j := 0; j < 5; j++ {
			for i := 0; i < 6; i++ {
				want := float64(l*100 + j*10 + i)
				inNaNTile := j >= 2 && j < 4 && i >= 4
				g := got[(l*5+j)*6+i]
				if inNaNTile {
					if !math.IsNaN(g) {
						t.Errorf("value[%d,%d,%d] = %v, want NaN", l, j, i, g)
					}
				} else if g != want {
					t.Errorf("value[%d,%d,%d] = %v, want %v", l, j, i, g, want)
				}
			}
		}
	}
}

func TestWriteDatasetProgress(t *testing.T) {
	dir := t.TempDir()
	ds := testDataset()
	var last int64
	var total int64
	err := WriteDataset(dir, ds, &WriterOptions{
		Workers: 1,
		Progress: func(done, tot int64) {
			last = done
			total = tot
		},
	})
	if err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if last != total || total == 0 {
		t.Errorf("progress ended at %d/%d", last, total)
	}
}
