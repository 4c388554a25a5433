package grid

import (
	"fmt"

	"github.com/pspoerri/rastercube/internal/coord"
	"github.com/pspoerri/rastercube/internal/cube"
)

// xyCandidates are the coordinate variable name pairs tried, in order,
// when a dataset carries no CF grid-mapping metadata.
var xyCandidates = [][2]string{
	{"lon", "lat"},
	{"longitude", "latitude"},
	{"x", "y"},
}

// FromDataset derives a grid mapping from a dataset's coordinate
// variables. The CRS is taken from CF grid-mapping metadata when present
// (a data variable's grid_mapping attribute pointing at a variable with
// crs_wkt or spatial_ref), otherwise geographic WGS84 is assumed.
func FromDataset(ds *cube.Dataset, opts *CoordsOptions) (*GridMapping, error) {
	crs := datasetCRS(ds)

	xVar, yVar := findXYCoords(ds)
	if xVar == nil || yVar == nil {
		return nil, fmt.Errorf("grid: dataset has no recognizable x/y coordinate variables")
	}
	return FromCoords(xVar, yVar, crs, opts)
}

// findXYCoords locates the horizontal coordinate pair, preferring CF
// standard_name attributes over conventional names.
func findXYCoords(ds *cube.Dataset) (xVar, yVar *cube.Variable) {
	for _, v := range ds.Coords {
		switch v.Attrs["standard_name"] {
		case "longitude", "projection_x_coordinate":
			if xVar == nil {
				xVar = v
			}
		case "latitude", "projection_y_coordinate":
			if yVar == nil {
				yVar = v
			}
		}
	}
	if xVar != nil && yVar != nil {
		return xVar, yVar
	}
	for _, pair := range xyCandidates {
		x, y := ds.Var(pair[0]), ds.Var(pair[1])
		if x != nil && y != nil {
			return x, y
		}
	}
	return nil, nil
}

// datasetCRS resolves the CRS through the CF grid_mapping chain, falling
// back to WGS84.
func datasetCRS(ds *cube.Dataset) coord.CRS {
	for _, v := range ds.DataVars {
		name, ok := v.Attrs["grid_mapping"].(string)
		if !ok {
			continue
		}
		gmVar := ds.Var(name)
		if gmVar == nil {
			continue
		}
		if crs, ok := crsFromAttrs(gmVar.Attrs); ok {
			return crs
		}
	}
	// Some products store the CRS variable without wiring grid_mapping.
	for _, name := range []string{"crs", "spatial_ref"} {
		if v := ds.Var(name); v != nil {
			if crs, ok := crsFromAttrs(v.Attrs); ok {
				return crs
			}
		}
	}
	return coord.WGS84
}

func crsFromAttrs(attrs cube.Attrs) (coord.CRS, bool) {
	for _, key := range []string{"crs_wkt", "spatial_ref"} {
		if wkt, ok := attrs[key].(string); ok && wkt != "" {
			if crs, err := coord.ParseCRS(wkt); err == nil {
				return crs, true
			}
		}
	}
	if name, ok := attrs["grid_mapping_name"].(string); ok && name == "latitude_longitude" {
		return coord.WGS84, true
	}
	return coord.CRS{}, false
}
