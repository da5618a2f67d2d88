package scoring

import (
	"math"

	"github.com/sells-group/riskgrid/internal/model"
)

// Saturation points of the metric transforms.
const (
	LightingSaturation = 25.0
	LSTBaseline        = 20.0
	LSTRange           = 15.0
	NO2Saturation      = 0.00015
	UHISaturation      = 3.0
)

// Land-cover categories with a boosted sub-score.
const (
	LandcoverTrees = "Trees"
	LandcoverCrops = "Crops"
	LandcoverWater = "Water"
)

// LightingScore maps night-time radiance to a sub-score.
func LightingScore(v float64) float64 {
	return 1 - math.Min(v/LightingSaturation, 1)
}

// LSTScore maps land surface temperature in °C to a sub-score.
func LSTScore(v float64) float64 {
	return 1 - math.Min((v-LSTBaseline)/LSTRange, 1)
}

// NO2Score maps NO2 concentration to a sub-score.
func NO2Score(v float64) float64 {
	return 1 - math.Min(v/NO2Saturation, 1)
}

// UHIScore maps heat-island intensity to a sub-score.
func UHIScore(v float64) float64 {
	return 1 - math.Min(v/UHISaturation, 1)
}

// LandcoverScore maps a land-cover category to a sub-score.
func LandcoverScore(category string) float64 {
	switch category {
	case LandcoverTrees, LandcoverCrops:
		return 1
	case LandcoverWater:
		return 0.8
	default:
		return 0.3
	}
}

// criterionScores returns the sub-score of every metric criterion that
// applies to the cell. Lighting, temperature and NO2 are skipped when
// missing, non-numeric or zero. Heat-island intensity participates
// whenever it is a number, zero included. Land cover needs a non-empty
// category.
func criterionScores(c model.GridCell) map[string]float64 {
	out := make(map[string]float64, 5)

	if v, ok := c.Number(model.KeyLighting); ok && v != 0 {
		out[model.KeyLighting] = LightingScore(v)
	}
	if v, ok := c.Number(model.KeyLST); ok && v != 0 {
		out[model.KeyLST] = LSTScore(v)
	}
	if v, ok := c.Number(model.KeyNO2); ok && v != 0 {
		out[model.KeyNO2] = NO2Score(v)
	}
	if v, ok := c.Number(model.KeyUHI); ok {
		out[model.KeyUHI] = UHIScore(v)
	}
	if cat := c.Text(model.KeyLandcover); cat != "" {
		out[model.KeyLandcover] = LandcoverScore(cat)
	}

	return out
}
