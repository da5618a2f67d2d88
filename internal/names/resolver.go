// Package names resolves cell centroids to administrative place names.
package names

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/db"
	"github.com/sells-group/riskgrid/internal/resilience"
	"github.com/sells-group/riskgrid/internal/store"
)

// PostGISResolver names a point after the finest boundary layer polygon
// containing it. Answers, including "no place", are cached in memory and
// optionally in a persistent NameCache.
type PostGISResolver struct {
	pool    db.Pool
	query   string
	limiter *rate.Limiter
	cache   store.NameCache
	ttl     time.Duration
	retry   resilience.Policy

	mu  sync.Mutex
	mem map[string]string
}

// Option configures a PostGISResolver.
type Option func(*PostGISResolver)

// WithCache persists resolved names in c for ttl.
func WithCache(c store.NameCache, ttl time.Duration) Option {
	return func(r *PostGISResolver) {
		r.cache = c
		r.ttl = ttl
	}
}

// WithRateLimit caps boundary lookups at perSecond queries per second.
// Zero or negative disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(r *PostGISResolver) {
		if perSecond <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry retries lookups that fail with a transient database error.
func WithRetry(p resilience.Policy) Option {
	return func(r *PostGISResolver) {
		r.retry = p
	}
}

// NewPostGISResolver creates a resolver over layers listed coarse to fine.
func NewPostGISResolver(pool db.Pool, layers []config.LocationLayer, opts ...Option) *PostGISResolver {
	r := &PostGISResolver{
		pool:    pool,
		query:   containsQuery(layers),
		limiter: rate.NewLimiter(rate.Inf, 1),
		ttl:     30 * 24 * time.Hour,
		retry:   resilience.Policy{Name: "names", Attempts: 1},
		mem:     make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// containsQuery selects the name of the finest layer containing ($1, $2).
func containsQuery(layers []config.LocationLayer) string {
	parts := make([]string, 0, len(layers))
	for i, l := range layers {
		parts = append(parts, fmt.Sprintf(
			"SELECT %s::text AS name, %d AS lvl FROM %s WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))",
			pgx.Identifier{l.NameColumn}.Sanitize(), i, db.QuoteTable(l.Table)))
	}
	return fmt.Sprintf("SELECT name FROM (\n\t%s\n) t WHERE name IS NOT NULL ORDER BY lvl DESC LIMIT 1",
		strings.Join(parts, "\n\tUNION ALL\n\t"))
}

// Key is the cache key of a point, rounded to about 10 m.
func Key(p orb.Point) string {
	return fmt.Sprintf("%.4f,%.4f", p.X(), p.Y())
}

// Resolve returns one name per point, in order. Points at the origin are
// treated as missing and resolve to "".
func (r *PostGISResolver) Resolve(ctx context.Context, points []orb.Point) ([]string, error) {
	out := make([]string, len(points))
	for i, p := range points {
		if p == (orb.Point{}) {
			continue
		}
		name, err := r.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}

func (r *PostGISResolver) resolve(ctx context.Context, p orb.Point) (string, error) {
	key := Key(p)

	r.mu.Lock()
	name, ok := r.mem[key]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	if r.cache != nil {
		name, found, err := r.cache.GetCachedName(ctx, key)
		if err != nil {
			zap.L().Warn("names: cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			r.remember(key, name)
			return name, nil
		}
	}

	name, err := resilience.Run(ctx, r.retry, func(ctx context.Context) (string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "rate limit wait")
		}
		var n string
		err := r.pool.QueryRow(ctx, r.query, p.X(), p.Y()).Scan(&n)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return n, err
	})
	if err != nil {
		return "", eris.Wrapf(err, "names: lookup %s", key)
	}

	r.remember(key, name)
	if r.cache != nil {
		if err := r.cache.SetCachedName(ctx, key, name, r.ttl); err != nil {
			zap.L().Warn("names: cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return name, nil
}

func (r *PostGISResolver) remember(key, name string) {
	r.mu.Lock()
	r.mem[key] = name
	r.mu.Unlock()
}
