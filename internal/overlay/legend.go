package overlay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/scoring"
)

// LegendEntry is one colour band of a legend.
type LegendEntry struct {
	Color string `json:"color"`
	Range string `json:"range"`
	Label string `json:"label"`
}

// LegendSpec is the legend shown for a mode.
type LegendSpec struct {
	Title   string        `json:"title"`
	Entries []LegendEntry `json:"entries"`
}

var overallLegend = []LegendEntry{
	{"#006837", "0.8-1.0", "Excellent"},
	{"#31a354", "0.6-0.8", "Good"},
	{"#addd8e", "0.4-0.6", "Average"},
	{"#fdae61", "0.2-0.4", "Poor"},
	{"#d73027", "≤ 0.2", "Critical"},
}

// Legend returns the legend for mode. The neutral mode shows the overall
// scale under a generic title.
func Legend(mode Mode) LegendSpec {
	if mode.Overall {
		return LegendSpec{Title: "Overall Rating", Entries: overallLegend}
	}

	switch mode.Attribute {
	case model.KeyLighting:
		return LegendSpec{Title: "Lighting Radiance", Entries: []LegendEntry{
			{"#800026", "> 20", "Very High"},
			{"#BD0026", "15-20", "High"},
			{"#E31A1C", "10-15", "Medium"},
			{"#FD8D3C", "5-10", "Low"},
			{"#FED976", "≤ 5", "Very Low"},
		}}
	case model.KeyLST:
		return LegendSpec{Title: "Land Surface Temp", Entries: []LegendEntry{
			{"#800026", "> 30°C", "Critical"},
			{"#BD0026", "28-30°C", "Very High"},
			{"#E31A1C", "26-28°C", "High"},
			{"#FD8D3C", "24-26°C", "Medium"},
			{"#FED976", "≤ 24°C", "Cool"},
		}}
	case model.KeyNO2:
		return LegendSpec{Title: "NO2 Concentration", Entries: []LegendEntry{
			{"#800026", "> 0.00015", "Critical"},
			{"#BD0026", "0.00012-0.00015", "Very High"},
			{"#E31A1C", "0.0001-0.00012", "High"},
			{"#FD8D3C", "0.00008-0.0001", "Moderate"},
			{"#FED976", "≤ 0.00008", "Low"},
		}}
	case model.KeyUHI:
		return LegendSpec{Title: "UHI Intensity", Entries: []LegendEntry{
			{"#800026", "> 2.0", "Extreme"},
			{"#E31A1C", "1.0-2.0", "High"},
			{"#FD8D3C", "0-1.0", "Moderate"},
			{"#FED976", "≤ 0", "Low"},
		}}
	case scoring.CriterionProximity:
		return LegendSpec{Title: "Police Station Proximity", Entries: []LegendEntry{
			{"#1a9850", "< 500 m", "Near"},
			{"#fee08b", "500-2000 m", "Moderate"},
			{"#d73027", "> 2000 m", "Far"},
			{ColorProximityNoData, "no stations", "No Data"},
		}}
	default:
		return LegendSpec{Title: "Legend", Entries: overallLegend}
	}
}

// Popup returns the popup text of a feature: one "key: value" line per
// attribute, sorted by key and skipping keys that start with "_", followed
// by the overall score as a percentage.
func Popup(c scoring.ScoredCell) string {
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := c.Attributes[k]
		if v == nil {
			v = "null"
		}
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	fmt.Fprintf(&b, "Overall Score: %.1f%%", c.OverallScore*100)
	return b.String()
}
