package grid

import (
	"math"
	"testing"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/geom"
)

func TestRegularConstructor(t *testing.T) {
	gm := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{})
	if !gm.IsRegular() {
		t.Error("expected regular grid")
	}
	if gm.IsJAxisUp() {
		t.Error("regular grids default to j axis down")
	}
	checkBBox(t, gm.XYBBox(), 1, -5, 9, 5)
	if xn, yn := gm.XYVarNames(); xn != "lon" || yn != "lat" {
		t.Errorf("geographic CRS should name vars lon/lat, got (%q, %q)", xn, yn)
	}
	gm = Regular(Size{W: 4, H: 4}, 0, 0, 100, 100, coord.WebMercator, Size{})
	if xn, yn := gm.XYVarNames(); xn != "x" || yn != "y" {
		t.Errorf("projected CRS should name vars x/y, got (%q, %q)", xn, yn)
	}
}

func TestXYBBoxesRowMajor(t *testing.T) {
	gm := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{W: 4, H: 5})
	boxes := gm.XYBBoxes()
	want := []geom.Bounds{
		{MinX: 1, MinY: 0, MaxX: 5, MaxY: 5},
		{MinX: 5, MinY: 0, MaxX: 9, MaxY: 5},
		{MinX: 1, MinY: -5, MaxX: 5, MaxY: 0},
		{MinX: 5, MinY: -5, MaxX: 9, MaxY: 0},
	}
	if len(boxes) != len(want) {
		t.Fatalf("got %d boxes, want %d", len(boxes), len(want))
	}
	for i, b := range boxes {
		if b != want[i] {
			t.Errorf("box %d = %+v, want %+v", i, b, want[i])
		}
	}
}

func TestXYBBoxesJAxisUp(t *testing.T) {
	gm := Regular(Size{W: 4, H: 4}, 0, 0, 1, 1, coord.WGS84, Size{W: 4, H: 2}).WithJAxisUp(true)
	boxes := gm.XYBBoxes()
	// First tile row now covers the lower half of the bbox.
	if boxes[0] != (geom.Bounds{MinX: 0, MinY: 0, MaxX: 4, MaxY: 2}) {
		t.Errorf("box 0 = %+v", boxes[0])
	}
	if boxes[1] != (geom.Bounds{MinX: 0, MinY: 2, MaxX: 4, MaxY: 4}) {
		t.Errorf("box 1 = %+v", boxes[1])
	}
}

func TestXYImagesMemoized(t *testing.T) {
	gm := Regular(Size{W: 3, H: 2}, 0, 0, 1, 1, coord.WGS84, Size{})
	x1, y1 := gm.XYImages()
	x2, y2 := gm.XYImages()
	if &x1[0] != &x2[0] || &y1[0] != &y2[0] {
		t.Error("coordinate images should be computed once and shared")
	}
	wantX := []float64{0.5, 1.5, 2.5, 0.5, 1.5, 2.5}
	wantY := []float64{1.5, 1.5, 1.5, 0.5, 0.5, 0.5}
	for i := range wantX {
		if x1[i] != wantX[i] || y1[i] != wantY[i] {
			t.Fatalf("images[%d] = (%v, %v), want (%v, %v)", i, x1[i], y1[i], wantX[i], wantY[i])
		}
	}
}

func TestXYImagesJAxisUp(t *testing.T) {
	gm := Regular(Size{W: 2, H: 2}, 0, 0, 1, 1, coord.WGS84, Size{}).WithJAxisUp(true)
	_, y := gm.XYImages()
	if y[0] != 0.5 || y[2] != 1.5 {
		t.Errorf("j-axis-up rows should ascend, got y = %v", y)
	}
}

func TestIjBBoxesFromXYBBoxes(t *testing.T) {
	gm := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{})
	boxes := gm.IjBBoxesFromXYBBoxes([]geom.Bounds{
		{MinX: 2, MinY: -2, MaxX: 5, MaxY: 2},
		{MinX: 100, MinY: 100, MaxX: 101, MaxY: 101},
	}, 0, 0, 2)
	// Pixel centers inside [2,5]x[-2,2]: columns 1..3 (x 2.5..4.5),
	// rows 3..6 (y 1.5..-1.5, j axis down).
	if got, want := boxes[0], (geom.IJBBox{1, 3, 3, 6}); got != want {
		t.Errorf("ij box = %v, want %v", got, want)
	}
	if !boxes[1].IsEmpty() {
		t.Errorf("disjoint query should give empty sentinel, got %v", boxes[1])
	}
}

func TestToRegularFromIrregular(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return 10.0 + 0.1*float64(i) + 0.1*float64(j) },
		func(i, j int) float64 { return 52.0 + 0.2*float64(i) + 0.3*float64(j) },
	)
	src, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	dst := src.ToRegular(Size{})
	if !dst.IsRegular() {
		t.Fatal("ToRegular must produce a regular grid")
	}
	xRes, yRes := dst.XYRes()
	srcXRes, srcYRes := src.XYRes()
	wantRes := math.Min(srcXRes, srcYRes)
	if xRes != wantRes || yRes != wantRes {
		t.Errorf("res = (%v, %v), want %v", xRes, yRes, wantRes)
	}
	// The regular grid must cover the source bbox entirely.
	sb, db := src.XYBBox(), dst.XYBBox()
	if db.MinX > sb.MinX+1e-9 || db.MinY > sb.MinY+1e-9 ||
		db.MaxX < sb.MaxX-1e-9 || db.MaxY < sb.MaxY-1e-9 {
		t.Errorf("regular bbox %+v does not cover source bbox %+v", db, sb)
	}
	if xn, yn := dst.XYVarNames(); xn != "lon" || yn != "lat" {
		t.Errorf("var names should carry over, got (%q, %q)", xn, yn)
	}
}

func TestToRegularOfRegularKeepsGeometry(t *testing.T) {
	src := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{})
	dst := src.ToRegular(Size{W: 4, H: 5})
	if dst.Size() != src.Size() || dst.XYBBox() != src.XYBBox() {
		t.Error("ToRegular of a regular grid must keep its geometry")
	}
	if dst.TileSize() != (Size{W: 4, H: 5}) {
		t.Errorf("tile size = %v, want {4 5}", dst.TileSize())
	}
}

func TestToCoordsRegular(t *testing.T) {
	gm := Regular(Size{W: 3, H: 2}, 0, 0, 1, 2, coord.WGS84, Size{})
	vars := gm.ToCoords()
	if len(vars) != 2 {
		t.Fatalf("got %d coord vars, want 2", len(vars))
	}
	xs := vars[0].Data.Values()
	ys := vars[1].Data.Values()
	wantXs := []float64{0.5, 1.5, 2.5}
	wantYs := []float64{3, 1}
	for i := range wantXs {
		if xs[i] != wantXs[i] {
			t.Errorf("x[%d] = %v, want %v", i, xs[i], wantXs[i])
		}
	}
	for j := range wantYs {
		if ys[j] != wantYs[j] {
			t.Errorf("y[%d] = %v, want %v", j, ys[j], wantYs[j])
		}
	}
	if vars[0].Attrs["units"] != "degrees_east" {
		t.Errorf("lon units = %v", vars[0].Attrs["units"])
	}
}

func TestToCoordsIrregular(t *testing.T) {
	lon, lat := coords2D(4, 3,
		func(i, j int) float64 { return 10.0 + 0.1*float64(i) + 0.1*float64(j) },
		func(i, j int) float64 { return 52.0 + 0.2*float64(i) + 0.3*float64(j) },
	)
	gm, err := FromCoords(lon, lat, coord.WGS84, nil)
	if err != nil {
		t.Fatalf("FromCoords: %v", err)
	}
	vars := gm.ToCoords()
	if got := vars[0].Shape(); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("2-D coord var shape = %v, want [3 4]", got)
	}
	if vars[0].Dims[0] != "y" || vars[0].Dims[1] != "x" {
		t.Errorf("dims = %v, want [y x]", vars[0].Dims)
	}
}

func TestWithTileSize(t *testing.T) {
	gm := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{})
	tiled := gm.WithTileSize(Size{W: 3, H: 3})
	if gm.TileSize() != (Size{W: 8, H: 10}) {
		t.Error("WithTileSize must not mutate the receiver")
	}
	if tiled.TileSize() != (Size{W: 3, H: 3}) {
		t.Errorf("tile size = %v, want {3 3}", tiled.TileSize())
	}
	if !tiled.IsTiled() || gm.IsTiled() {
		t.Error("tiling flags wrong")
	}
	// Oversized tile requests clamp to the grid.
	if gm.WithTileSize(Size{W: 100, H: 100}).TileSize() != gm.Size() {
		t.Error("oversized tile size should clamp to the grid size")
	}
}

func TestDerive(t *testing.T) {
	gm := Regular(Size{W: 8, H: 10}, 1, -5, 1, 1, coord.WGS84, Size{})
	d := gm.Derive(Size{W: 4, H: 5}, true)
	if d.TileSize() != (Size{W: 4, H: 5}) || !d.IsJAxisUp() {
		t.Errorf("Derive = tile %v jUp %v, want {4 5} true", d.TileSize(), d.IsJAxisUp())
	}
	if gm.IsJAxisUp() || gm.TileSize() != gm.Size() {
		t.Error("Derive must not mutate the receiver")
	}
	if d.XYBBox() != gm.XYBBox() {
		t.Error("Derive must preserve the bbox")
	}
}
