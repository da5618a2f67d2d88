package scoring

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/sells-group/riskgrid/internal/model"
)

// Proximity bands in coordinate degrees.
const (
	ProximityNear = 0.02
	ProximityFar  = 0.05
)

// NearestPlanar returns the smallest planar (degree-unit) distance from p to
// any of pts. It reports false when pts is empty.
func NearestPlanar(p orb.Point, pts []orb.Point) (float64, bool) {
	best := math.Inf(1)
	for _, q := range pts {
		if d := planar.Distance(p, q); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

// ProximityScore bands a planar distance into 1, 0.5 or 0.
func ProximityScore(d float64) float64 {
	switch {
	case d < ProximityNear:
		return 1
	case d < ProximityFar:
		return 0.5
	default:
		return 0
	}
}

// proximityScore scores a cell against the POI locations. The criterion is
// skipped when the cell has no centroid or no POI has coordinates.
func proximityScore(c model.GridCell, pts []orb.Point) (float64, bool) {
	if len(pts) == 0 || c.Geometry == nil {
		return 0, false
	}
	centroid, ok := model.Centroid(c.Geometry)
	if !ok {
		return 0, false
	}
	d, ok := NearestPlanar(centroid, pts)
	if !ok {
		return 0, false
	}
	return ProximityScore(d), true
}
