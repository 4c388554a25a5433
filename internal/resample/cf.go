package resample

import (
	"fmt"

	"github.com/pspoerri/rastercube/internal/cube"
	"github.com/pspoerri/rastercube/internal/grid"
)

// encodeGridMappingVar builds the scalar CF grid-mapping variable for the
// target grid. Geographic grids use the latitude_longitude mapping name;
// projected grids carry their EPSG identifier in spatial_ref.
func encodeGridMappingVar(gm *grid.GridMapping, name string) *cube.Variable {
	crs := gm.CRS()
	attrs := cube.Attrs{}
	if crs.Geographic {
		attrs["grid_mapping_name"] = "latitude_longitude"
	}
	if crs.Code != 0 {
		attrs["spatial_ref"] = fmt.Sprintf("EPSG:%d", crs.Code)
	} else if crs.Name != "" {
		attrs["spatial_ref"] = crs.Name
	}
	xRes, yRes := gm.XYRes()
	attrs["resolution"] = []float64{xRes, yRes}
	return &cube.Variable{
		Name:  name,
		Attrs: attrs,
		Data:  cube.NewDense(nil, []float64{0}),
	}
}
