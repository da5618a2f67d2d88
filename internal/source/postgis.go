package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/db"
	"github.com/sells-group/riskgrid/internal/model"
)

// PostGIS loads districts from a grid table joined to administrative
// boundary layers, and POIs from a point table.
type PostGIS struct {
	pool      db.Pool
	gridTable string
	poiTable  string
	locations []config.LocationLayer
	pois      POILoader
}

// NewPostGIS creates a PostGIS loader.
func NewPostGIS(pool db.Pool, cfg config.SourceConfig) *PostGIS {
	return &PostGIS{
		pool:      pool,
		gridTable: cfg.GridTable,
		poiTable:  cfg.POITable,
		locations: cfg.Locations,
	}
}

// WithPOILoader makes LoadDistrict fetch POIs from l over the district's
// bounding box instead of the POI table.
func (p *PostGIS) WithPOILoader(l POILoader) *PostGIS {
	p.pois = l
	return p
}

// Grid attributes selected besides gid, geometry and location name.
var (
	gridNumeric = []string{model.KeyLighting, model.KeyUHI, model.KeyLST, model.KeyNO2}
	gridText    = []string{model.KeyLandcover, "landcover_"}
)

// LoadDistrict returns the grid cells intersecting any boundary named
// district (case-insensitive) together with the POIs.
func (p *PostGIS) LoadDistrict(ctx context.Context, district string) (*District, error) {
	if strings.TrimSpace(district) == "" {
		return nil, eris.New("source: district name is required")
	}

	out := &District{Name: district}

	if p.pois != nil {
		cells, err := p.loadCells(ctx, district)
		if err != nil {
			return nil, err
		}
		out.Cells = cells
		if b, ok := Bounds(cells); ok {
			pois, err := p.pois.LoadPOIs(ctx, b)
			if err != nil {
				return nil, eris.Wrap(err, "source: load POIs")
			}
			out.POIs = pois
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cells, err := p.loadCells(gctx, district)
			out.Cells = cells
			return err
		})
		if p.poiTable != "" {
			g.Go(func() error {
				pois, err := p.loadPOIs(gctx)
				out.POIs = pois
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	zap.L().Info("source: loaded district",
		zap.String("district", district),
		zap.Int("cells", len(out.Cells)),
		zap.Int("pois", len(out.POIs)),
	)
	return out, nil
}

func (p *PostGIS) gridQuery() string {
	layers := make([]string, 0, len(p.locations))
	for _, l := range p.locations {
		layers = append(layers, fmt.Sprintf("SELECT %s::text AS name, geom FROM %s",
			pgx.Identifier{l.NameColumn}.Sanitize(), db.QuoteTable(l.Table)))
	}

	cols := []string{"w.gid::text"}
	for _, c := range gridText {
		cols = append(cols, fmt.Sprintf("w.%s::text", pgx.Identifier{c}.Sanitize()))
	}
	for _, c := range gridNumeric {
		cols = append(cols, fmt.Sprintf("w.%s::float8", pgx.Identifier{c}.Sanitize()))
	}
	cols = append(cols, "ST_AsGeoJSON(w.geom) AS geometry", "l.name AS location_name")

	return fmt.Sprintf(`WITH locations AS (
	%s
)
SELECT %s
FROM %s w
JOIN locations l ON ST_Intersects(w.geom, l.geom)
WHERE LOWER(l.name) = LOWER($1)`,
		strings.Join(layers, "\n\tUNION ALL\n\t"),
		strings.Join(cols, ", "),
		db.QuoteTable(p.gridTable),
	)
}

func (p *PostGIS) loadCells(ctx context.Context, district string) ([]model.GridCell, error) {
	rows, err := p.pool.Query(ctx, p.gridQuery(), district)
	if err != nil {
		return nil, eris.Wrapf(err, "source: query grid cells for %s", district)
	}
	defer rows.Close()

	var cells []model.GridCell
	for rows.Next() {
		var gid string
		var geometry, locationName *string
		text := make([]*string, len(gridText))
		nums := make([]*float64, len(gridNumeric))
		dest := []any{&gid}
		for i := range text {
			dest = append(dest, &text[i])
		}
		for i := range nums {
			dest = append(dest, &nums[i])
		}
		dest = append(dest, &geometry, &locationName)

		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "source: scan grid cell")
		}

		attrs := map[string]any{model.KeyGID: gid}
		for i, c := range gridText {
			attrs[c] = nullable(text[i])
		}
		for i, c := range gridNumeric {
			attrs[c] = nullable(nums[i])
		}
		attrs[model.KeyLocationName] = nullable(locationName)

		var g []byte
		if geometry != nil {
			g = []byte(*geometry)
		}
		cells = append(cells, model.NewGridCell(attrs, model.DecodeGeometry(g)))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "source: iterate grid cells")
	}
	return cells, nil
}

func (p *PostGIS) poiQuery() string {
	return fmt.Sprintf(`SELECT name::text, district::text, x::text, y::text,
	CASE WHEN ST_SRID(geom) = 0 THEN NULL ELSE ST_X(ST_Transform(geom, 4326)) END AS lon,
	CASE WHEN ST_SRID(geom) = 0 THEN NULL ELSE ST_Y(ST_Transform(geom, 4326)) END AS lat
FROM %s`, db.QuoteTable(p.poiTable))
}

func (p *PostGIS) loadPOIs(ctx context.Context) ([]model.POI, error) {
	rows, err := p.pool.Query(ctx, p.poiQuery())
	if err != nil {
		return nil, eris.Wrap(err, "source: query POIs")
	}
	defer rows.Close()

	var (
		pois     []model.POI
		noCoords int
	)
	for rows.Next() {
		var name, district, x, y *string
		var lon, lat *float64
		if err := rows.Scan(&name, &district, &x, &y, &lon, &lat); err != nil {
			return nil, eris.Wrap(err, "source: scan POI")
		}
		poi := model.POI{
			Name:     deref(name),
			District: deref(district),
			Coords:   poiCoords(lon, lat, x, y),
		}
		if poi.Coords == nil {
			noCoords++
		}
		pois = append(pois, poi)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "source: iterate POIs")
	}

	if noCoords > 0 {
		zap.L().Debug("source: POIs without usable coordinates", zap.Int("count", noCoords))
	}
	return pois, nil
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
