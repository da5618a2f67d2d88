package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestCentroid_PolygonCountsClosingVertex(t *testing.T) {
	g := DecodeGeometry([]byte(`{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,4],[0,0]]]}`))

	p, ok := Centroid(g)
	require.True(t, ok)
	// Five vertices including the repeated start: (0+4+4+0+0)/5.
	assert.InDelta(t, 1.6, p.X(), 1e-9)
	assert.InDelta(t, 1.6, p.Y(), 1e-9)
}

func TestCentroid_UsesOuterRingOnly(t *testing.T) {
	g := DecodeGeometry([]byte(`{"type":"Polygon","coordinates":[
		[[0,0],[2,0],[2,2],[0,0]],
		[[100,100],[101,100],[101,101],[100,100]]
	]}`))

	p, ok := Centroid(g)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.X(), 1e-9)
	assert.InDelta(t, 0.5, p.Y(), 1e-9)
}

func TestCentroid_MultiPolygonFirstPart(t *testing.T) {
	g := DecodeGeometry([]byte(`{"type":"MultiPolygon","coordinates":[
		[[[10,10],[12,10],[12,12],[10,10]]],
		[[[50,50],[52,50],[52,52],[50,50]]]
	]}`))

	p, ok := Centroid(g)
	require.True(t, ok)
	assert.InDelta(t, 11.0, p.X(), 1e-9)
	assert.InDelta(t, 10.5, p.Y(), 1e-9)
}

func TestCentroid_NoCentroid(t *testing.T) {
	assert.False(t, func() bool { _, ok := Centroid(nil); return ok }())
	assert.False(t, func() bool { _, ok := Centroid(geom.NewPolygon(geom.XY)); return ok }())
	assert.False(t, func() bool { _, ok := Centroid(geom.NewMultiPolygon(geom.XY)); return ok }())
	assert.False(t, func() bool {
		_, ok := Centroid(geom.NewPointFlat(geom.XY, []float64{1, 2}))
		return ok
	}())
}

func TestBound(t *testing.T) {
	g := DecodeGeometry([]byte(`{"type":"Polygon","coordinates":[[[77.1,28.5],[77.3,28.5],[77.3,28.7],[77.1,28.5]]]}`))

	b, ok := Bound(g)
	require.True(t, ok)
	assert.InDelta(t, 77.1, b.Min.X(), 1e-9)
	assert.InDelta(t, 28.7, b.Max.Y(), 1e-9)

	_, ok = Bound(nil)
	assert.False(t, ok)
}

func TestPOI_Point(t *testing.T) {
	p := POI{Name: "PS Dwarka", Coords: &Coords{X: 77.05, Y: 28.59}}
	pt, ok := p.Point()
	require.True(t, ok)
	assert.Equal(t, 77.05, pt.X())

	_, ok = POI{Name: "no coords"}.Point()
	assert.False(t, ok)

	_, ok = POI{Coords: &Coords{X: math.NaN(), Y: 1}}.Point()
	assert.False(t, ok)

	pts := Points([]POI{p, {Name: "none"}, {Coords: &Coords{X: 1, Y: 2}}})
	assert.Len(t, pts, 2)
}
