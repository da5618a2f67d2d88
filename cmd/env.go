package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/db"
	"github.com/sells-group/riskgrid/internal/names"
	"github.com/sells-group/riskgrid/internal/resilience"
	"github.com/sells-group/riskgrid/internal/scoring"
	"github.com/sells-group/riskgrid/internal/source"
	"github.com/sells-group/riskgrid/internal/store"
)

// scoringEnv holds what the score and serve commands share.
type scoringEnv struct {
	Pool     *pgxpool.Pool // nil when grids come from files
	Store    store.Store
	Loader   source.Loader
	Names    scoring.NameResolver // may be nil
	Postgres *store.PostgresStore // score write-back; nil without a pool
	Source   string
}

// Close releases resources held by the environment.
func (e *scoringEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initEnv connects the district source, the run store and the name
// resolver. Grids come from dataDir when it is set, else from PostGIS.
// Callers should defer env.Close().
func initEnv(ctx context.Context, dataDir string) (*scoringEnv, error) {
	env := &scoringEnv{}

	var pois source.POILoader
	if cfg.Overpass.Enabled {
		pois = source.NewOverpass(cfg.Overpass)
	}

	if dataDir != "" {
		if err := cfg.Validate("file"); err != nil {
			return nil, err
		}
		dir := source.NewDir(dataDir)
		if pois != nil {
			dir.WithPOILoader(pois)
		}
		env.Loader = dir
		env.Source = "files"
	} else {
		if err := cfg.Validate("postgres"); err != nil {
			return nil, err
		}
		pool, err := db.Connect(ctx, cfg.Source.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Source.MaxConns,
			MinConns: cfg.Source.MinConns,
		})
		if err != nil {
			return nil, eris.Wrap(err, "connect source database")
		}
		env.Pool = pool
		env.Postgres = store.NewPostgresWithPool(pool)

		pg := source.NewPostGIS(pool, cfg.Source)
		if pois != nil {
			pg.WithPOILoader(pois)
		}
		env.Loader = pg
		env.Source = "postgis"
	}

	st, err := initStore(ctx, env.Pool)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Names.Enabled && env.Pool != nil {
		opts := []names.Option{
			names.WithRateLimit(cfg.Names.RateLimit),
			names.WithRetry(resilience.FromConfig("names", cfg.Names.Retry)),
		}
		if cache, ok := st.(store.NameCache); ok {
			opts = append(opts, names.WithCache(cache, time.Duration(cfg.Names.CacheTTLHrs)*time.Hour))
		}
		env.Names = names.NewPostGISResolver(env.Pool, cfg.Source.Locations, opts...)
	}

	zap.L().Debug("environment ready",
		zap.String("source", env.Source),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("names", env.Names != nil),
		zap.Bool("overpass", pois != nil),
	)
	return env, nil
}

// initStore opens the run store selected by store.driver. A postgres store
// reuses pool when one is open.
func initStore(ctx context.Context, pool *pgxpool.Pool) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		if pool != nil {
			return store.NewPostgresWithPool(pool), nil
		}
		return store.NewPostgres(ctx, cfg.Source.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Source.MaxConns,
			MinConns: cfg.Source.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// defaultWeights returns the configured user weights, or the built-in
// defaults when the config has none.
func defaultWeights() scoring.Weights {
	if len(cfg.Scoring.Weights) == 0 {
		return scoring.DefaultUserWeights()
	}
	raw := make(map[string]any, len(cfg.Scoring.Weights))
	for k, v := range cfg.Scoring.Weights {
		raw[k] = v
	}
	return scoring.ParseWeights(raw)
}
