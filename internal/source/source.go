// Package source loads grid cells and points of interest for a district
// from PostGIS, GeoJSON or shapefiles, and POIs from OpenStreetMap.
package source

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/sells-group/riskgrid/internal/model"
)

// District is everything one scoring session needs.
type District struct {
	Name  string           `json:"name"`
	Cells []model.GridCell `json:"grids"`
	POIs  []model.POI      `json:"police_stations"`
}

// Loader loads a district by name.
type Loader interface {
	LoadDistrict(ctx context.Context, name string) (*District, error)
}

// POILoader fetches points of interest inside a bounding box.
type POILoader interface {
	LoadPOIs(ctx context.Context, b orb.Bound) ([]model.POI, error)
}

// Bounds returns the union of the cell geometries' bounding boxes.
func Bounds(cells []model.GridCell) (orb.Bound, bool) {
	var out orb.Bound
	found := false
	for _, c := range cells {
		b, ok := model.Bound(c.Geometry)
		if !ok {
			continue
		}
		if !found {
			out = b
			found = true
			continue
		}
		out = out.Union(b)
	}
	return out, found
}
