package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/grid"
	"github.com/pspoerri/rastercube/internal/zarr"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: gridinfo <dataset.zarr>\n")
		os.Exit(1)
	}

	r, err := zarr.OpenReader(os.Args[1], 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	ds, err := r.ReadDataset()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	gm, err := grid.FromDataset(ds, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	crs := gm.CRS()
	bbox := gm.XYBBox()
	xRes, yRes := gm.XYRes()
	xName, yName := gm.XYVarNames()

	fmt.Printf("Dataset: %s\n", os.Args[1])
	fmt.Printf("CRS: %s", crs.Name)
	if crs.Code != 0 {
		fmt.Printf(" (EPSG:%d)", crs.Code)
	}
	fmt.Printf("\n")
	fmt.Printf("Size: %d x %d\n", gm.Width(), gm.Height())
	fmt.Printf("Resolution: %g x %g\n", xRes, yRes)
	midLat := (bbox.MinY + bbox.MaxY) / 2
	fmt.Printf("Ground resolution: ~%.1f m/pixel\n", coord.GroundResolution(crs, xRes, midLat))
	fmt.Printf("Bounds: X=[%g, %g], Y=[%g, %g]\n", bbox.MinX, bbox.MaxX, bbox.MinY, bbox.MaxY)
	if !crs.Geographic {
		if p := coord.ForEPSG(crs.Code); p != nil {
			lonMin, latMin := p.ToWGS84(bbox.MinX, bbox.MinY)
			lonMax, latMax := p.ToWGS84(bbox.MaxX, bbox.MaxY)
			fmt.Printf("Bounds (WGS84): Lon=[%.5f, %.5f], Lat=[%.5f, %.5f]\n", lonMin, lonMax, latMin, latMax)
		}
	}
	fmt.Printf("Coordinates: %s/%s, %s\n", xName, yName, gridKind(gm))
	fmt.Printf("Row order: %s\n", rowOrder(gm))
	if gm.IsTiled() {
		ts := gm.TileSize()
		fmt.Printf("Tiles: %dx%d pixels, %d x %d grid\n", ts.W, ts.H, gm.NumTilesX(), gm.NumTilesY())
	} else {
		fmt.Printf("Tiles: untiled\n")
	}

	names := make([]string, 0, len(ds.DataVars))
	for name := range ds.DataVars {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("\nVariables:\n")
	for _, name := range names {
		v := ds.DataVars[name]
		dtype := v.Dtype
		if dtype == "" {
			dtype = "float64"
		}
		fmt.Printf("  %s %s %v", name, dtype, v.Shape())
		if units, ok := v.Attrs["units"].(string); ok {
			fmt.Printf(" [%s]", units)
		}
		fmt.Printf("\n")
	}
}

func gridKind(gm *grid.GridMapping) string {
	if gm.IsRegular() {
		return "regular grid"
	}
	return "irregular (2-d coordinate images)"
}

func rowOrder(gm *grid.GridMapping) string {
	if gm.IsJAxisUp() {
		return "bottom-up (j axis points north)"
	}
	return "top-down"
}
