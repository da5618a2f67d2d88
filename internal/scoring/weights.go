// Package scoring computes the composite urban-risk score of grid cells
// and derives rankings and district summaries from the scored set.
package scoring

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
)

// CriterionProximity is the weight key of the point-of-interest proximity
// criterion.
const CriterionProximity = "police_station"

// Criteria lists the six recognized weight keys in display order.
var Criteria = []string{
	model.KeyLighting,
	model.KeyLST,
	model.KeyNO2,
	model.KeyUHI,
	model.KeyLandcover,
	CriterionProximity,
}

// Weights maps a criterion key to its weight.
type Weights map[string]float64

// DefaultUserWeights returns the initial weights of the interactive scoring
// path.
func DefaultUserWeights() Weights {
	return Weights{
		model.KeyLighting:  0.18,
		model.KeyLST:       0.22,
		model.KeyNO2:       0.22,
		model.KeyUHI:       0.18,
		model.KeyLandcover: 0.10,
		CriterionProximity: 0.10,
	}
}

// DisplayDefaultWeights returns the fixed weights the overlay uses to colour
// features that carry no computed score. Proximity is not part of it.
func DisplayDefaultWeights() Weights {
	return Weights{
		model.KeyLighting:  0.20,
		model.KeyLST:       0.25,
		model.KeyNO2:       0.25,
		model.KeyUHI:       0.20,
		model.KeyLandcover: 0.10,
	}
}

// IsCriterion reports whether key is one of the six recognized criteria.
func IsCriterion(key string) bool {
	for _, c := range Criteria {
		if c == key {
			return true
		}
	}
	return false
}

// Clone returns a copy of w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum returns the sum of the sanitized weight values, added in key order.
func (w Weights) Sum() float64 {
	var sum float64
	for _, k := range w.Keys() {
		sum += sanitize(w[k])
	}
	return sum
}

// Get returns the sanitized weight for key; missing keys weigh 0.
func (w Weights) Get(key string) float64 {
	return sanitize(w[key])
}

// Keys returns the weight keys sorted alphabetically.
func (w Weights) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize rescales w so the values sum to 1 while keeping their ratios.
// Non-finite and negative values count as 0. When the sanitized sum is 0
// the input is returned unchanged and callers should treat scoring as
// disabled.
func Normalize(w Weights) Weights {
	sum := w.Sum()
	if sum == 0 {
		return w
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = sanitize(v) / sum
	}
	return out
}

// ParseWeights converts loosely typed weights (JSON bodies, YAML files)
// into Weights. Unknown keys are dropped and unparseable values become 0.
func ParseWeights(raw map[string]any) Weights {
	w := make(Weights, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if !IsCriterion(key) {
			zap.L().Debug("scoring: ignoring unknown weight key", zap.String("key", k))
			continue
		}
		f, ok := model.ToFloat(v)
		if !ok {
			zap.L().Debug("scoring: non-numeric weight treated as 0", zap.String("key", key), zap.Any("value", v))
			f = 0
		}
		w[key] = sanitize(f)
	}
	return w
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
