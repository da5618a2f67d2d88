package scoring

import (
	"math"
	"strconv"

	"github.com/sells-group/riskgrid/internal/model"
)

// Priority thresholds.
const (
	HighUHIThreshold     = 2.0
	HighNO2Threshold     = 0.00012
	LowLightingThreshold = 5.0
)

// MetricSummary is the count and mean of the positive readings of a metric.
type MetricSummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// Display formats the mean with the given decimals, or "N/A" without data.
func (m MetricSummary) Display(decimals int) string {
	if m.Count == 0 {
		return "N/A"
	}
	return strconv.FormatFloat(m.Mean, 'f', decimals, 64)
}

// Summary describes a scored district.
type Summary struct {
	TotalFeatures int           `json:"total_features"`
	Lighting      MetricSummary `json:"lighting"`
	LST           MetricSummary `json:"lst"`
	NO2           MetricSummary `json:"no2"`
	UHI           MetricSummary `json:"uhi"`
	HighUHI       int           `json:"high_uhi"`
	HighNO2       int           `json:"high_no2"`
	LowLighting   int           `json:"low_lighting"`
	ScoredCells   int           `json:"scored_cells"`
	// DistrictHealth is the mean of positive overall scores on a 0-100
	// scale. Cells scoring exactly 0 are left out.
	DistrictHealth int `json:"district_health"`
}

// Summarize computes the district summary of a scored collection.
func Summarize(scored []ScoredCell) Summary {
	s := Summary{TotalFeatures: len(scored)}

	var lighting, lst, no2, uhi accumulator
	var healthSum float64
	var healthN int

	for _, c := range scored {
		lighting.add(c.GridCell, model.KeyLighting)
		lst.add(c.GridCell, model.KeyLST)
		no2.add(c.GridCell, model.KeyNO2)
		uhi.add(c.GridCell, model.KeyUHI)

		if v, ok := c.Number(model.KeyUHI); ok && v > HighUHIThreshold {
			s.HighUHI++
		}
		if v, ok := c.Number(model.KeyNO2); ok && v > HighNO2Threshold {
			s.HighNO2++
		}
		if v, ok := c.Number(model.KeyLighting); ok && v < LowLightingThreshold {
			s.LowLighting++
		}

		if c.Scored {
			s.ScoredCells++
		}
		if c.OverallScore > 0 {
			healthSum += c.OverallScore
			healthN++
		}
	}

	s.Lighting = lighting.summary()
	s.LST = lst.summary()
	s.NO2 = no2.summary()
	s.UHI = uhi.summary()
	if healthN > 0 {
		s.DistrictHealth = int(math.Round(healthSum / float64(healthN) * 100))
	}
	return s
}

type accumulator struct {
	sum float64
	n   int
}

func (a *accumulator) add(c model.GridCell, key string) {
	if v, ok := c.Number(key); ok && v > 0 {
		a.sum += v
		a.n++
	}
}

func (a accumulator) summary() MetricSummary {
	if a.n == 0 {
		return MetricSummary{}
	}
	return MetricSummary{Count: a.n, Mean: a.sum / float64(a.n)}
}
