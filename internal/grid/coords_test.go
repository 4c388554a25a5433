package grid

import (
	"math"
	"strings"
	"testing"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/geom"
)

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func axisVar(name, dim string, values []float64) *cube.Variable {
	return cube.NewVariable(name, []string{dim}, []int{len(values)}, values)
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func checkBBox(t *testing.T, got geom.Bounds, minX, minY, maxX, maxY float64) {
	t.Helper()
	tol := 1e-9
	if !approx(got.MinX, minX, tol) || !approx(got.MinY, minY, tol) ||
		!approx(got.MaxX, maxX, tol) || !approx(got.MaxY, maxY, tol) {
		t.Errorf("bbox = (%v, %v, %v, %v), want (%v, %v, %v, %v)",
			got.MinX, got.MinY, got.MaxX, got.MaxY, minX, minY, maxX, maxY)
	}
}

func TestFromCoords1DRegular(t *testing.T) {
	lon := axisVar("lon", "lon", linspace(1.5, 8.5, 8))
	lat := axisVar("lat", "lat", linspace(-4.5, 4.5, 10))

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if gm.Size() != (Size{W: 8, H: 10}) {
		t.Errorf("size = %v, want {8 10}", gm.Size())
	}
	if !gm.IsRegular() {
		t.Error("expected regular grid")
	}
	if !gm.IsJAxisUp() {
		t.Error("ascending lat should give j axis up")
	}
	if gm.IsLon360() {
		t.Error("unexpected lon-360 representation")
	}
	xRes, yRes := gm.XYRes()
	if !approx(xRes, 1, 1e-12) || !approx(yRes, 1, 1e-12) {
		t.Errorf("res = (%v, %v), want (1, 1)", xRes, yRes)
	}
	checkBBox(t, gm.XYBBox(), 1, -5, 9, 5)
	if xn, yn := gm.XYVarNames(); xn != "lon" || yn != "lat" {
		t.Errorf("var names = (%q, %q)", xn, yn)
	}
	if gm.TileSize() != gm.Size() {
		t.Errorf("unchunked coords should give tile size == size, got %v", gm.TileSize())
	}
}

func TestFromCoords1DDescendingLat(t *testing.T) {
	lon := axisVar("lon", "lon", linspace(1.5, 8.5, 8))
	lat := axisVar("lat", "lat", linspace(4.5, -4.5, 10))

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if !gm.IsRegular() {
		t.Error("expected regular grid")
	}
	if gm.IsJAxisUp() {
		t.Error("descending lat should give j axis down")
	}
	checkBBox(t, gm.XYBBox(), 1, -5, 9, 5)
}

func TestFromCoords1DIrregular(t *testing.T) {
	xs := linspace(1.5, 8.5, 8)
	xs[4] = 5.49
	lon := axisVar("lon", "lon", xs)
	lat := axisVar("lat", "lat", linspace(-4.5, 4.5, 10))

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if gm.IsRegular() {
		t.Error("perturbed lon axis should not be regular")
	}
	xRes, yRes := gm.XYRes()
	if !approx(xRes, 1, 1e-12) || !approx(yRes, 1, 1e-12) {
		t.Errorf("res = (%v, %v), want (1, 1)", xRes, yRes)
	}
	checkBBox(t, gm.XYBBox(), 1, -5, 9, 5)
}

func TestFromCoords1DAntiMeridian(t *testing.T) {
	lon := axisVar("lon", "lon", []float64{177.5, 178.5, 179.5, -179.5, -178.5, -177.5})
	lat := axisVar("lat", "lat", linspace(-2.5, 2.5, 6))

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if !gm.IsLon360() {
		t.Error("anti-meridian crossing should switch to lon-360")
	}
	if !gm.IsRegular() {
		t.Error("unwrapped axis should be regular")
	}
	checkBBox(t, gm.XYBBox(), 177, -3, 183, 3)

	// Already-unwrapped longitudes must produce the same grid.
	raw := axisVar("lon", "lon", []float64{177.5, 178.5, 179.5, 180.5, 181.5, 182.5})
	gm2, err := FromCoords(raw, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords(raw): %v", err)
	}
	if !gm2.IsLon360() || gm2.Size() != gm.Size() || gm2.XYBBox() != gm.XYBBox() {
		t.Errorf("raw lon-360 input: got bbox %v size %v, want bbox %v size %v",
			gm2.XYBBox(), gm2.Size(), gm.XYBBox(), gm.Size())
	}
}

func TestFromCoords1DTileSizeFromChunks(t *testing.T) {
	lonData := cube.WithChunks(cube.NewDense([]int{8}, linspace(1.5, 8.5, 8)), []int{4})
	latData := cube.WithChunks(cube.NewDense([]int{10}, linspace(-4.5, 4.5, 10)), []int{5})
	lon := &cube.Variable{Name: "lon", Dims: []string{"lon"}, Attrs: cube.Attrs{}, Data: lonData}
	lat := &cube.Variable{Name: "lat", Dims: []string{"lat"}, Attrs: cube.Attrs{}, Data: latData}

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if gm.TileSize() != (Size{W: 4, H: 5}) {
		t.Errorf("tile size = %v, want {4 5}", gm.TileSize())
	}
	if gm.NumTilesX() != 2 || gm.NumTilesY() != 2 {
		t.Errorf("tile counts = (%d, %d), want (2, 2)", gm.NumTilesX(), gm.NumTilesY())
	}
}

func TestFromCoords1DErrors(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want string
	}{
		{"duplicate", []float64{1, 2, 2, 3}, "strictly monotonic"},
		{"nonmonotonic", []float64{1, 3, 2, 4}, "strictly monotonic"},
		{"nan", []float64{1, math.NaN(), 3, 4}, "NaN"},
	}
	lat := axisVar("lat", "lat", linspace(-4.5, 4.5, 10))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lon := axisVar("lon", "lon", tt.xs)
			_, err := FromCoords(lon, lat, coord.WGS84, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func coords2D(w, h int, fx, fy func(i, j int) float64) (xVar, yVar *cube.Variable) {
	xImg := make([]float64, w*h)
	yImg := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			xImg[j*w+i] = fx(i, j)
			yImg[j*w+i] = fy(i, j)
		}
	}
	dims := []string{"y", "x"}
	shape := []int{h, w}
	return cube.NewVariable("lon", dims, shape, xImg), cube.NewVariable("lat", dims, shape, yImg)
}

func TestFromCoords2DRegular(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return 10.2 + 0.1*float64(i) },
		func(i, j int) float64 { return 52.8 - 0.2*float64(j) },
	)
	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if !gm.IsRegular() {
		t.Error("lattice coordinates should be detected as regular")
	}
	xRes, yRes := gm.XYRes()
	if !approx(xRes, 0.1, 1e-9) || !approx(yRes, 0.2, 1e-9) {
		t.Errorf("res = (%v, %v), want (0.1, 0.2)", xRes, yRes)
	}
	if gm.IsJAxisUp() {
		t.Error("y decreasing with j should give j axis down")
	}
	checkBBox(t, gm.XYBBox(), 10.15, 52.3, 10.55, 52.9)
	if xd, yd := gm.XYDimNames(); xd != "x" || yd != "y" {
		t.Errorf("dim names = (%q, %q), want (x, y)", xd, yd)
	}
}

func TestFromCoords2DIrregular(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return 10.0 + 0.1*float64(i) + 0.1*float64(j) },
		func(i, j int) float64 { return 52.0 + 0.2*float64(i) + 0.3*float64(j) },
	)
	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if gm.IsRegular() {
		t.Error("sheared coordinates should not be regular")
	}
	// Smallest neighbor distance is hypot(0.1, 0.2) ~ 0.2236, tidied to 0.2.
	xRes, yRes := gm.XYRes()
	if !approx(xRes, 0.2, 1e-9) || !approx(yRes, 0.2, 1e-9) {
		t.Errorf("res = (%v, %v), want (0.2, 0.2)", xRes, yRes)
	}
	if !gm.IsJAxisUp() {
		t.Error("y increasing with j should give j axis up")
	}
	checkBBox(t, gm.XYBBox(), 9.9, 51.9, 10.6, 53.3)
}

func TestFromCoords2DWithNaN(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return 10.0 + 0.1*float64(i) + 0.1*float64(j) },
		func(i, j int) float64 { return 52.0 + 0.2*float64(i) + 0.3*float64(j) },
	)
	xs := lon.Data.Values()
	ys := lat.Data.Values()
	xs[0], ys[0] = math.NaN(), math.NaN()

	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	if gm.IsRegular() {
		t.Error("grid with missing coordinates should not be regular")
	}
	// The bbox must come from the remaining finite values only.
	if math.IsNaN(gm.XYBBox().MinX) {
		t.Error("bbox should ignore NaN coordinates")
	}
	if !approx(gm.XYBBox().MinX, 10.1-0.1, 1e-9) {
		t.Errorf("bbox minX = %v, want 10.0", gm.XYBBox().MinX)
	}
}

func TestFromCoords2DAllNaN(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return math.NaN() },
		func(i, j int) float64 { return math.NaN() },
	)
	_, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err == nil {
		t.Fatal("expected error for coordinates without finite values")
	}
	if !strings.Contains(err.Error(), "finite") {
		t.Errorf("error = %q, want mention of finite values", err)
	}
}

func TestFromCoordsMismatches(t *testing.T) {
	lon1d := axisVar("lon", "lon", linspace(1.5, 8.5, 8))
	lon2d, lat2d := coords2D(4, 3,
		func(i, j int) float64 { return float64(i) },
		func(i, j int) float64 { return float64(j) },
	)
	if _, err := FromCoords(lon1d, lat2d, coord.WGS84, nil); err == nil {
		t.Error("mixed 1-D/2-D coords should fail")
	}
	small, _ := coords2D(3, 3,
		func(i, j int) float64 { return float64(i) },
		func(i, j int) float64 { return float64(j) },
	)
	if _, err := FromCoords(lon2d, small, coord.WGS84, nil); err == nil {
		t.Error("mismatched 2-D shapes should fail")
	}
}

func TestRoundToFraction(t *testing.T) {
	tests := []struct {
		value      float64
		digits     int
		resolution float64
		want       float64
	}{
		{0.2236, 1, 0.5, 0.2},
		{1.0, 1, 0.5, 1.0},
		{2.828, 1, 0.5, 3.0},
		{0.523, 1, 0.5, 0.5},
		{0.0, 1, 0.5, 0.0},
	}
	for _, tt := range tests {
		if got := roundToFraction(tt.value, tt.digits, tt.resolution); !approx(got, tt.want, 1e-12) {
			t.Errorf("roundToFraction(%v, %d, %v) = %v, want %v",
				tt.value, tt.digits, tt.resolution, got, tt.want)
		}
	}
}

func TestFromDataset(t *testing.T) {
	ds := cube.NewDataset()
	ds.AddCoord(axisVar("lon", "lon", linspace(1.5, 8.5, 8)))
	ds.AddCoord(axisVar("lat", "lat", linspace(-4.5, 4.5, 10)))
	data := cube.NewVariable("sst", []string{"lat", "lon"}, []int{10, 8}, make([]float64, 80))
	ds.AddDataVar(data)

	gm, err := FromDataset(ds, nil)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	if !gm.CRS().Geographic {
		t.Error("lon/lat dataset should default to a geographic CRS")
	}
	checkBBox(t, gm.XYBBox(), 1, -5, 9, 5)
}

func TestFromDatasetGridMappingVar(t *testing.T) {
	ds := cube.NewDataset()
	ds.AddCoord(axisVar("x", "x", linspace(500.0, 3500.0, 4)))
	ds.AddCoord(axisVar("y", "y", linspace(3500.0, 500.0, 4)))
	data := cube.NewVariable("band", []string{"y", "x"}, []int{4, 4}, make([]float64, 16))
	data.Attrs["grid_mapping"] = "crs"
	ds.AddDataVar(data)
	crsVar := &cube.Variable{Name: "crs", Attrs: cube.Attrs{
		"crs_wkt": `PROJCS["WGS 84 / Pseudo-Mercator",AUTHORITY["EPSG","3857"]]`,
	}}
	ds.AddCoord(crsVar)

	gm, err := FromDataset(ds, nil)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	if gm.CRS().Code != 3857 {
		t.Errorf("CRS = %v, want EPSG:3857", gm.CRS())
	}
	if gm.CRS().Geographic {
		t.Error("EPSG:3857 should not be geographic")
	}
}

func TestFromDatasetNoCoords(t *testing.T) {
	ds := cube.NewDataset()
	if _, err := FromDataset(ds, nil); err == nil {
		t.Error("dataset without coordinates should fail")
	}
}
