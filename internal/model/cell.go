// Package model defines grid cells, points of interest and the attribute
// accessors shared by scoring and overlay rendering.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Raw attribute keys carried by grid cells. The column names are the
// 10-character DBF truncations the grid data was produced with.
const (
	KeyLighting     = "lighting_r"
	KeyLST          = "lst_celsiu"
	KeyNO2          = "no2"
	KeyUHI          = "uhi_intens"
	KeyLandcover    = "landcove_1"
	KeyLocationName = "location_name"
	KeyGID          = "gid"
	KeyID           = "id"
)

// GridCell is one spatial unit with its raw attributes and geometry.
// Attributes are never mutated by scoring or rendering.
type GridCell struct {
	GID          string
	LocationName string
	Geometry     geom.T // nil when missing or unparseable
	Attributes   map[string]any
}

// NewGridCell builds a cell from raw attributes. The identifier is taken
// from "gid", falling back to "id".
func NewGridCell(attrs map[string]any, g geom.T) GridCell {
	if attrs == nil {
		attrs = map[string]any{}
	}
	c := GridCell{
		Geometry:   g,
		Attributes: attrs,
	}
	c.GID = IdentifierOf(attrs)
	c.LocationName = c.Text(KeyLocationName)
	return c
}

// IdentifierOf returns the stringified gid, or id when gid is absent.
func IdentifierOf(attrs map[string]any) string {
	for _, k := range []string{KeyGID, KeyID} {
		if v, ok := attrs[k]; ok && v != nil {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Present reports whether the attribute exists and is not null.
func (c GridCell) Present(key string) bool {
	v, ok := c.Attributes[key]
	return ok && v != nil
}

// Number returns the attribute parsed as a finite float. Numeric strings
// are accepted; anything else reports false.
func (c GridCell) Number(key string) (float64, bool) {
	v, ok := c.Attributes[key]
	if !ok || v == nil {
		return 0, false
	}
	return ToFloat(v)
}

// Text returns the attribute as a trimmed string, or "" when absent.
func (c GridCell) Text(key string) string {
	v, ok := c.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// ToFloat converts a decoded attribute value into a finite float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// UnmarshalJSON decodes a flat grid row: every key is an attribute except
// "geometry", which may be a GeoJSON object or a JSON-encoded string.
func (c *GridCell) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode grid cell")
	}

	attrs := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "geometry" {
			continue
		}
		val, err := decodeValue(v)
		if err != nil {
			return eris.Wrapf(err, "model: decode attribute %s", k)
		}
		attrs[k] = val
	}

	*c = NewGridCell(attrs, DecodeGeometry(raw["geometry"]))
	return nil
}

// MarshalJSON writes the cell back as a flat row with a GeoJSON geometry.
func (c GridCell) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Attributes)+2)
	for k, v := range c.Attributes {
		out[k] = v
	}
	out[KeyGID] = c.GID
	if c.Geometry != nil {
		g, err := geojson.Marshal(c.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "model: encode geometry for %s", c.GID)
		}
		out["geometry"] = json.RawMessage(g)
	} else {
		out["geometry"] = nil
	}
	return json.Marshal(out)
}

// DecodeAttributes decodes a JSON object of attributes, keeping numbers
// as json.Number so integer ids keep their textual form.
func DecodeAttributes(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, eris.Wrap(err, "model: decode attributes")
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
