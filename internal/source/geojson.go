package source

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage `json:"id"`
	Properties json.RawMessage `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// LoadGeoJSON reads grid cells from a GeoJSON FeatureCollection. Feature
// properties become cell attributes; a top-level feature id is used when the
// properties carry neither gid nor id.
func LoadGeoJSON(r io.Reader) ([]model.GridCell, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "source: decode geojson")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("source: geojson type %q is not a FeatureCollection", fc.Type)
	}

	cells := make([]model.GridCell, 0, len(fc.Features))
	for i, f := range fc.Features {
		attrs, err := model.DecodeAttributes(f.Properties)
		if err != nil {
			return nil, eris.Wrapf(err, "source: feature %d properties", i)
		}
		if model.IdentifierOf(attrs) == "" && len(bytes.TrimSpace(f.ID)) > 0 {
			var id any
			if err := decodeNumber(f.ID, &id); err == nil && id != nil {
				attrs[model.KeyID] = id
			}
		}
		cells = append(cells, model.NewGridCell(attrs, model.DecodeGeometry(f.Geometry)))
	}

	zap.L().Debug("source: loaded geojson", zap.Int("cells", len(cells)))
	return cells, nil
}

type districtPayload struct {
	Grids          []model.GridCell `json:"grids"`
	PoliceStations []poiRecord      `json:"police_stations"`
}

type poiRecord struct {
	Name     string `json:"name"`
	District string `json:"district"`
	Coords   *struct {
		X any `json:"x"`
		Y any `json:"y"`
	} `json:"coords"`
}

// DecodeDistrict reads a saved district payload of the form
// {"grids": [...], "police_stations": [...]}. Grid rows are flat attribute
// objects with a "geometry" member given as an object or a JSON string.
func DecodeDistrict(r io.Reader, name string) (*District, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var p districtPayload
	if err := dec.Decode(&p); err != nil {
		return nil, eris.Wrap(err, "source: decode district payload")
	}

	d := &District{Name: name, Cells: p.Grids}
	for _, ps := range p.PoliceStations {
		poi := model.POI{Name: ps.Name, District: ps.District}
		if ps.Coords != nil {
			x, okX := ParseCoordinate(ps.Coords.X)
			y, okY := ParseCoordinate(ps.Coords.Y)
			if okX && okY {
				poi.Coords = &model.Coords{X: x, Y: y}
			}
		}
		d.POIs = append(d.POIs, poi)
	}
	return d, nil
}

func decodeNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
