package scoring

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
)

// ScoredCell is a grid cell with its composite score.
type ScoredCell struct {
	model.GridCell

	// OverallScore is 0 when no criterion applied. Use Scored to tell an
	// unscored cell from a computed 0.
	OverallScore float64
	Scored       bool
	// Components holds the raw sub-score of each criterion that applied.
	Components map[string]float64
}

// MarshalJSON writes the flat cell row plus the score fields.
func (s ScoredCell) MarshalJSON() ([]byte, error) {
	base, err := s.GridCell.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var row map[string]json.RawMessage
	if err := json.Unmarshal(base, &row); err != nil {
		return nil, err
	}
	row["overall_score"], _ = json.Marshal(s.OverallScore)
	row["scored"], _ = json.Marshal(s.Scored)
	row["components"], _ = json.Marshal(s.Components)
	return json.Marshal(row)
}

// Score scores every cell against the given weights and POIs. Weights are
// normalized once for the batch and each cell is scored independently from
// its raw attributes, so re-running on the same input is idempotent.
func Score(cells []model.GridCell, w Weights, pois []model.POI) []ScoredCell {
	normalized := Normalize(w)
	pts := model.Points(pois)

	out := make([]ScoredCell, len(cells))
	var scored int
	for i, c := range cells {
		out[i] = ScoreCell(c, normalized, pts)
		if out[i].Scored {
			scored++
		}
	}

	zap.L().Debug("scoring: scored cells",
		zap.Int("cells", len(cells)),
		zap.Int("scored", scored),
		zap.Int("pois_with_coords", len(pts)),
	)

	return out
}

// ScoreCell computes one cell's composite score. normalized should already
// be the output of Normalize.
func ScoreCell(c model.GridCell, normalized Weights, pts []orb.Point) ScoredCell {
	components := criterionScores(c)
	if p, ok := proximityScore(c, pts); ok {
		components[CriterionProximity] = p
	}

	var total, totalWeight float64
	for _, key := range Criteria {
		sub, ok := components[key]
		if !ok {
			continue
		}
		w := normalized.Get(key)
		total += sub * w
		totalWeight += w
	}

	sc := ScoredCell{GridCell: c, Components: components}
	if totalWeight > 0 {
		sc.Scored = true
		// Sub-scores can exceed 1 for readings below the transform
		// baselines; the composite stays within [0,1].
		sc.OverallScore = math.Max(0, math.Min(total/totalWeight, 1))
	}
	return sc
}
