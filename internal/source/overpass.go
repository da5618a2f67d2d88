package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/resilience"
)

// Overpass loads POIs tagged amenity=<Amenity> from an Overpass API endpoint.
type Overpass struct {
	client  overpass.Client
	amenity string
	timeout time.Duration
	retry   resilience.Policy
}

// NewOverpass creates an Overpass POI loader.
func NewOverpass(cfg config.OverpassConfig) *Overpass {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	amenity := cfg.Amenity
	if amenity == "" {
		amenity = "police"
	}
	// Public Overpass instances shed load with 429 and 504 answers, so
	// every failure other than cancellation is retried.
	retry := resilience.FromConfig("overpass", cfg.Retry)
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Overpass{
		client:  overpass.NewWithSettings(cfg.Endpoint, 2, &http.Client{Timeout: timeout}),
		amenity: amenity,
		timeout: timeout,
		retry:   retry,
	}
}

// Query builds the Overpass QL for nodes and ways inside b. Overpass bboxes
// are south,west,north,east.
func (o *Overpass) Query(b orb.Bound) string {
	bbox := fmt.Sprintf("%f,%f,%f,%f", b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())
	return fmt.Sprintf(`[out:json][timeout:%d];
(
	node["amenity"=%q](%s);
	way["amenity"=%q](%s);
);
out body;
>;
out skel qt;`, int(o.timeout.Seconds()), o.amenity, bbox, o.amenity, bbox)
}

// LoadPOIs returns the matching POIs in b, nodes first then ways, each in
// ascending OSM id order. A way is located at the mean of its nodes.
func (o *Overpass) LoadPOIs(ctx context.Context, b orb.Bound) ([]model.POI, error) {
	res, err := resilience.Run(ctx, o.retry, func(ctx context.Context) (*overpass.Result, error) {
		return o.query(ctx, b)
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: overpass query")
	}

	pois := o.convert(res)
	zap.L().Info("source: loaded POIs from overpass",
		zap.String("amenity", o.amenity),
		zap.Int("pois", len(pois)),
	)
	return pois, nil
}

// query runs one request bounded by the loader timeout. The client has no
// context support, so the request is abandoned rather than cancelled.
func (o *Overpass) query(ctx context.Context, b orb.Bound) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type response struct {
		res overpass.Result
		err error
	}
	ch := make(chan response, 1)
	go func() {
		res, err := o.client.Query(o.Query(b))
		ch <- response{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &r.res, nil
	}
}

func (o *Overpass) convert(res *overpass.Result) []model.POI {
	nodeIDs := make([]int64, 0, len(res.Nodes))
	for id, n := range res.Nodes {
		if n.Tags["amenity"] == o.amenity {
			nodeIDs = append(nodeIDs, id)
		}
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	wayIDs := make([]int64, 0, len(res.Ways))
	for id, w := range res.Ways {
		if w.Tags["amenity"] == o.amenity {
			wayIDs = append(wayIDs, id)
		}
	}
	sort.Slice(wayIDs, func(i, j int) bool { return wayIDs[i] < wayIDs[j] })

	pois := make([]model.POI, 0, len(nodeIDs)+len(wayIDs))
	for _, id := range nodeIDs {
		n := res.Nodes[id]
		pois = append(pois, model.POI{
			Name:     osmName(n.Tags, "node", id),
			District: osmDistrict(n.Tags),
			Coords:   &model.Coords{X: n.Lon, Y: n.Lat},
		})
	}
	for _, id := range wayIDs {
		w := res.Ways[id]
		poi := model.POI{
			Name:     osmName(w.Tags, "way", id),
			District: osmDistrict(w.Tags),
		}
		var lat, lon float64
		var count int
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			lat += n.Lat
			lon += n.Lon
			count++
		}
		if count > 0 {
			poi.Coords = &model.Coords{X: lon / float64(count), Y: lat / float64(count)}
		}
		pois = append(pois, poi)
	}
	return pois
}

func osmName(tags map[string]string, kind string, id int64) string {
	for _, k := range []string{"name", "name:en"} {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return fmt.Sprintf("%s/%d", kind, id)
}

func osmDistrict(tags map[string]string) string {
	for _, k := range []string{"addr:district", "addr:city"} {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
