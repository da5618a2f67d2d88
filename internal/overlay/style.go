// Package overlay resolves map render styles for scored grid cells and
// keeps the rendered feature set in step with highlight selections.
package overlay

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/scoring"
)

// Fill colours.
const (
	ColorNeutral         = "#555555"
	ColorProximityNoData = "#777777"
	ColorOutline         = "#00d4aa"
	ColorEmphasis        = "#ffffff"
)

// Distance bands of proximity rendering, in metres.
const (
	ProximityNearMeters = 500.0
	ProximityMidMeters  = 2000.0
)

// Style is the render style of one feature.
type Style struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// BaseStyle returns the default outline with the given fill.
func BaseStyle(fill string) Style {
	return Style{
		Color:       ColorOutline,
		Weight:      0.5,
		Opacity:     0.3,
		FillColor:   fill,
		FillOpacity: 0.7,
	}
}

// Emphasize returns s with the highlight outline applied. The fill colour
// is kept.
func Emphasize(s Style) Style {
	s.Weight = 2.5
	s.Color = ColorEmphasis
	s.FillOpacity = 0.95
	return s
}

// Mode selects how features are coloured. Overall takes precedence over
// Attribute; an empty Attribute without Overall renders neutral.
type Mode struct {
	Overall   bool   `json:"overall"`
	Attribute string `json:"attribute,omitempty"`
}

// Name returns "overall", the attribute key, or "" for the neutral mode.
func (m Mode) Name() string {
	if m.Overall {
		return "overall"
	}
	return m.Attribute
}

type band struct {
	above float64
	color string
}

var attributeBands = map[string][]band{
	model.KeyLighting: {{20, "#800026"}, {15, "#BD0026"}, {10, "#E31A1C"}, {5, "#FD8D3C"}},
	model.KeyLST:      {{30, "#800026"}, {28, "#BD0026"}, {26, "#E31A1C"}, {24, "#FD8D3C"}},
	model.KeyNO2:      {{0.00015, "#800026"}, {0.00012, "#BD0026"}, {0.0001, "#E31A1C"}, {0.00008, "#FD8D3C"}},
	model.KeyUHI:      {{2, "#800026"}, {1, "#E31A1C"}, {0, "#FD8D3C"}},
}

const attributeFloor = "#FED976"

var overallBands = []band{{0.8, "#006837"}, {0.6, "#31a354"}, {0.4, "#addd8e"}, {0.2, "#fdae61"}}

const overallFloor = "#d73027"

// AttributeColor colours a raw metric reading. Attributes without a colour
// scale and unparseable readings are neutral.
func AttributeColor(attr string, value any) string {
	bands, ok := attributeBands[attr]
	if !ok || value == nil {
		return ColorNeutral
	}
	v, ok := model.ToFloat(value)
	if !ok {
		return ColorNeutral
	}
	return pick(bands, attributeFloor, v)
}

// OverallColor colours a composite score.
func OverallColor(score float64) string {
	if math.IsNaN(score) {
		return ColorNeutral
	}
	return pick(overallBands, overallFloor, score)
}

// ProximityColor colours a great-circle distance in metres.
func ProximityColor(meters float64) string {
	switch {
	case meters < ProximityNearMeters:
		return "#1a9850"
	case meters < ProximityMidMeters:
		return "#fee08b"
	default:
		return "#d73027"
	}
}

func pick(bands []band, floor string, v float64) string {
	for _, b := range bands {
		if v > b.above {
			return b.color
		}
	}
	return floor
}

// NearestHaversine returns the great-circle distance in metres from p to the
// closest of pts.
func NearestHaversine(p orb.Point, pts []orb.Point) (float64, bool) {
	best := math.Inf(1)
	for _, q := range pts {
		if d := geo.DistanceHaversine(p, q); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

// Resolver computes feature styles for one mode and POI set.
type Resolver struct {
	mode     Mode
	pois     []orb.Point
	fallback scoring.Weights
}

// NewResolver returns a Resolver for mode. Only POIs with coordinates are
// kept.
func NewResolver(mode Mode, pois []model.POI) *Resolver {
	return &Resolver{
		mode:     mode,
		pois:     model.Points(pois),
		fallback: scoring.Normalize(scoring.DisplayDefaultWeights()),
	}
}

// Mode returns the resolver's mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Style returns the style of c. Cells without geometry are always neutral.
func (r *Resolver) Style(c scoring.ScoredCell) Style {
	return BaseStyle(r.FillColor(c))
}

// FillColor returns the fill colour of c under the resolver's mode.
func (r *Resolver) FillColor(c scoring.ScoredCell) string {
	if c.Geometry == nil {
		return ColorNeutral
	}

	switch {
	case r.mode.Overall:
		score, ok := r.overallScore(c)
		if !ok {
			return ColorNeutral
		}
		return OverallColor(score)
	case r.mode.Attribute == scoring.CriterionProximity:
		centroid, ok := model.Centroid(c.Geometry)
		if !ok {
			return ColorProximityNoData
		}
		d, ok := NearestHaversine(centroid, r.pois)
		if !ok {
			return ColorProximityNoData
		}
		return ProximityColor(d)
	case r.mode.Attribute != "":
		return AttributeColor(r.mode.Attribute, c.Attributes[r.mode.Attribute])
	default:
		return ColorNeutral
	}
}

// overallScore prefers the computed score and falls back to the display
// default weights for cells that were never scored.
func (r *Resolver) overallScore(c scoring.ScoredCell) (float64, bool) {
	if c.Scored {
		return c.OverallScore, true
	}
	fb := scoring.ScoreCell(c.GridCell, r.fallback, nil)
	return fb.OverallScore, fb.Scored
}
