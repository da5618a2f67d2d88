package source

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/riskgrid/internal/model"
)

// dmsPattern matches "<seq> <degrees> <minutes> <hemisphere>", for example
// "12 77 13.4 E". The leading number is a sequence field and is ignored.
var dmsPattern = regexp.MustCompile(`^\d+\s+(\d+)\s+([\d.]+)\s*([NSEW])`)

// ParseCoordinate converts a stored coordinate to decimal degrees. Numbers
// pass through; strings are read in degree-minute form or as plain decimals.
// Southern and western hemispheres are negative.
func ParseCoordinate(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return model.ToFloat(v)
	}
	s = strings.TrimSpace(s)

	if m := dmsPattern.FindStringSubmatch(s); m != nil {
		deg, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		mins, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, false
		}
		val := deg + mins/60
		if m[3] == "S" || m[3] == "W" {
			val = -val
		}
		return val, true
	}

	return model.ToFloat(s)
}

// poiCoords picks numeric lon/lat when both are present and falls back to
// parsing the textual x/y columns.
func poiCoords(lon, lat *float64, x, y *string) *model.Coords {
	if lon != nil && lat != nil {
		return &model.Coords{X: *lon, Y: *lat}
	}
	if x == nil || y == nil {
		return nil
	}
	cx, okX := ParseCoordinate(*x)
	cy, okY := ParseCoordinate(*y)
	if !okX || !okY {
		return nil
	}
	return &model.Coords{X: cx, Y: cy}
}
