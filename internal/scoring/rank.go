package scoring

import (
	"context"
	"sort"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/model"
)

// DefaultTopN is the ranking length used when none is configured.
const DefaultTopN = 10

// RankedEntry is a top-N cell with its display name and centroid.
type RankedEntry struct {
	Rank         int       `json:"rank"`
	GID          string    `json:"gid"`
	Name         string    `json:"name"`
	LocationName string    `json:"location_name,omitempty"`
	OverallScore float64   `json:"overall_score"`
	Scored       bool      `json:"scored"`
	Centroid     orb.Point `json:"centroid"`
	HasCentroid  bool      `json:"has_centroid"`
}

// NameResolver turns cell centroids into place names. The result is
// parallel to pts; an empty string means no name.
type NameResolver interface {
	Resolve(ctx context.Context, pts []orb.Point) ([]string, error)
}

// Top returns up to n cells sorted by score descending. Equal scores keep
// their input order. The input slice is not reordered.
func Top(scored []ScoredCell, n int) []ScoredCell {
	if n <= 0 {
		n = DefaultTopN
	}
	sorted := make([]ScoredCell, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OverallScore > sorted[j].OverallScore
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Rank builds the top-n ranking with centroids and fallback names. The
// resolver may be nil.
func Rank(ctx context.Context, scored []ScoredCell, n int, resolver NameResolver) []RankedEntry {
	top := Top(scored, n)

	entries := make([]RankedEntry, len(top))
	for i, c := range top {
		centroid, ok := model.Centroid(c.Geometry)
		entries[i] = RankedEntry{
			Rank:         i + 1,
			GID:          c.GID,
			LocationName: c.LocationName,
			OverallScore: c.OverallScore,
			Scored:       c.Scored,
			Centroid:     centroid,
			HasCentroid:  ok,
		}
	}

	ResolveNames(ctx, entries, resolver)
	return entries
}

// ResolveNames fills Name on every entry: the resolved place name when
// available, else the location name, else the gid. Resolver failures and
// short or long results degrade to the fallbacks.
func ResolveNames(ctx context.Context, entries []RankedEntry, resolver NameResolver) {
	var names []string
	if resolver != nil && len(entries) > 0 {
		pts := make([]orb.Point, len(entries))
		for i, e := range entries {
			pts[i] = e.Centroid
		}
		resolved, err := resolver.Resolve(ctx, pts)
		switch {
		case err != nil:
			zap.L().Warn("scoring: name resolution failed, using fallback names", zap.Error(err))
		case len(resolved) != len(entries):
			zap.L().Warn("scoring: name resolver returned mismatched length",
				zap.Int("want", len(entries)),
				zap.Int("got", len(resolved)),
			)
			names = resolved
		default:
			names = resolved
		}
	}

	for i := range entries {
		e := &entries[i]
		e.Name = ""
		if e.HasCentroid && i < len(names) {
			e.Name = names[i]
		}
		if e.Name == "" {
			e.Name = e.LocationName
		}
		if e.Name == "" {
			e.Name = e.GID
		}
	}
}
