package model

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// DecodeGeometry parses a GeoJSON geometry given either as an object or as
// a JSON string holding the object. Missing or malformed input yields nil.
func DecodeGeometry(data []byte) geom.T {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			zap.L().Debug("model: unparseable geometry string", zap.Error(err))
			return nil
		}
		return DecodeGeometry([]byte(s))
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		zap.L().Debug("model: unparseable geometry", zap.Error(err))
		return nil
	}
	return g
}

// Centroid returns the planar average of the vertices of the first ring of a
// polygon, or of the first ring of the first polygon of a multi-polygon.
// Every listed vertex counts, including a closing vertex that repeats the
// first. Other geometry types and empty rings have no centroid.
func Centroid(g geom.T) (orb.Point, bool) {
	switch t := g.(type) {
	case *geom.Polygon:
		if t == nil || t.NumLinearRings() == 0 {
			return orb.Point{}, false
		}
		return ringMean(t.LinearRing(0))
	case *geom.MultiPolygon:
		if t == nil || t.NumPolygons() == 0 {
			return orb.Point{}, false
		}
		p := t.Polygon(0)
		if p.NumLinearRings() == 0 {
			return orb.Point{}, false
		}
		return ringMean(p.LinearRing(0))
	default:
		return orb.Point{}, false
	}
}

func ringMean(r *geom.LinearRing) (orb.Point, bool) {
	stride := r.Stride()
	flat := r.FlatCoords()
	if stride < 2 || len(flat) < stride {
		return orb.Point{}, false
	}

	var x, y float64
	n := len(flat) / stride
	for i := 0; i < n; i++ {
		x += flat[i*stride]
		y += flat[i*stride+1]
	}
	return orb.Point{x / float64(n), y / float64(n)}, true
}

// Bound returns the planar bounding box of a geometry, used to frame a
// feature in the view.
func Bound(g geom.T) (orb.Bound, bool) {
	if g == nil || len(g.FlatCoords()) == 0 {
		return orb.Bound{}, false
	}
	b := g.Bounds()
	return orb.Bound{
		Min: orb.Point{b.Min(0), b.Min(1)},
		Max: orb.Point{b.Max(0), b.Max(1)},
	}, true
}
