package model

import (
	"math"

	"github.com/paulmach/orb"
)

// POI is a point of interest such as a police station.
type POI struct {
	Name     string  `json:"name"`
	District string  `json:"district"`
	Coords   *Coords `json:"coords"`
}

// Coords is a longitude (X) / latitude (Y) pair.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point returns the POI location. POIs without finite coordinates are
// excluded from every distance computation.
func (p POI) Point() (orb.Point, bool) {
	if p.Coords == nil {
		return orb.Point{}, false
	}
	x, y := p.Coords.X, p.Coords.Y
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

// Points returns the locations of all POIs that have valid coordinates.
func Points(pois []POI) []orb.Point {
	pts := make([]orb.Point, 0, len(pois))
	for _, p := range pois {
		if pt, ok := p.Point(); ok {
			pts = append(pts, pt)
		}
	}
	return pts
}
