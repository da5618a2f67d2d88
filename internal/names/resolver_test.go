package names

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/resilience"
	"github.com/sells-group/riskgrid/internal/store"
)

var testLayers = []config.LocationLayer{
	{Table: "gadm41_ind_1", NameColumn: "name_1"},
	{Table: "gadm41_ind_3", NameColumn: "name_3"},
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetCachedName(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockCache) SetCachedName(ctx context.Context, key, name string, ttl time.Duration) error {
	return m.Called(ctx, key, name, ttl).Error(0)
}

func TestContainsQuery(t *testing.T) {
	q := containsQuery(testLayers)
	assert.Contains(t, q, `SELECT "name_1"::text AS name, 0 AS lvl FROM "gadm41_ind_1"`)
	assert.Contains(t, q, `SELECT "name_3"::text AS name, 1 AS lvl FROM "gadm41_ind_3"`)
	assert.Contains(t, q, "ORDER BY lvl DESC LIMIT 1")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "77.2000,28.6000", Key(orb.Point{77.2, 28.6}))
	assert.Equal(t, "77.2196,28.6329", Key(orb.Point{77.21956, 28.63291}))
}

func TestResolve(t *testing.T) {
	pool := newMockPool(t)
	r := NewPostGISResolver(pool, testLayers)

	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Connaught Place"))
	pool.ExpectQuery("ST_Contains").
		WithArgs(70.0, 10.0).
		WillReturnError(pgx.ErrNoRows)

	got, err := r.Resolve(context.Background(), []orb.Point{{77.2, 28.6}, {}, {70, 10}, {77.2, 28.6}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Connaught Place", "", "", "Connaught Place"}, got)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResolve_QueryError(t *testing.T) {
	pool := newMockPool(t)
	r := NewPostGISResolver(pool, testLayers)

	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := r.Resolve(context.Background(), []orb.Point{{77.2, 28.6}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names: lookup 77.2000,28.6000")
}

func TestResolve_UsesPersistentCache(t *testing.T) {
	pool := newMockPool(t)
	cache := new(mockCache)
	r := NewPostGISResolver(pool, testLayers, WithCache(cache, time.Hour))

	cache.On("GetCachedName", mock.Anything, "77.2000,28.6000").Return("Janpath", true, nil).Once()
	cache.On("GetCachedName", mock.Anything, "77.3000,28.7000").Return("", false, nil).Once()
	cache.On("SetCachedName", mock.Anything, "77.3000,28.7000", "Shahdara", time.Hour).Return(nil).Once()

	pool.ExpectQuery("ST_Contains").
		WithArgs(77.3, 28.7).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Shahdara"))

	got, err := r.Resolve(context.Background(), []orb.Point{{77.2, 28.6}, {77.3, 28.7}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Janpath", "Shahdara"}, got)

	// Second call is served from memory.
	got, err = r.Resolve(context.Background(), []orb.Point{{77.3, 28.7}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Shahdara"}, got)

	cache.AssertExpectations(t)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResolve_CacheFailuresAreNotFatal(t *testing.T) {
	pool := newMockPool(t)
	cache := new(mockCache)
	r := NewPostGISResolver(pool, testLayers, WithCache(cache, time.Hour))

	cache.On("GetCachedName", mock.Anything, mock.Anything).Return("", false, fmt.Errorf("disk I/O error"))
	cache.On("SetCachedName", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("database is locked"))

	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Connaught Place"))

	got, err := r.Resolve(context.Background(), []orb.Point{{77.2, 28.6}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Connaught Place"}, got)
}

func TestResolve_SQLiteCacheRoundTrip(t *testing.T) {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "names.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))

	pool := newMockPool(t)
	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnError(pgx.ErrNoRows)

	first := NewPostGISResolver(pool, testLayers, WithCache(s, time.Hour))
	_, err = first.Resolve(context.Background(), []orb.Point{{77.2, 28.6}})
	require.NoError(t, err)

	// A fresh resolver finds the negative answer in the store without querying.
	second := NewPostGISResolver(pool, testLayers, WithCache(s, time.Hour))
	got, err := second.Resolve(context.Background(), []orb.Point{{77.2, 28.6}})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, got)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResolve_RateLimitHonoursContext(t *testing.T) {
	pool := newMockPool(t)
	r := NewPostGISResolver(pool, testLayers, WithRateLimit(0.001))

	pool.ExpectQuery("ST_Contains").
		WithArgs(1.0, 1.0).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("A"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, []orb.Point{{1, 1}, {2, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestResolve_RetriesTransientErrors(t *testing.T) {
	pool := newMockPool(t)
	r := NewPostGISResolver(pool, testLayers,
		WithRetry(resilience.Policy{Name: "names", Attempts: 2, Backoff: time.Millisecond}))

	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnError(resilience.NewTransientError(fmt.Errorf("connection reset by peer"), 0))
	pool.ExpectQuery("ST_Contains").
		WithArgs(77.2, 28.6).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Karol Bagh"))

	got, err := r.Resolve(context.Background(), []orb.Point{{77.2, 28.6}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Karol Bagh"}, got)
	assert.NoError(t, pool.ExpectationsWereMet())
}
