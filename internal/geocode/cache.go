package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-map/internal/metrics"
)

// Store persists successful lookups keyed by normalized query.
type Store interface {
	Get(ctx context.Context, key string) (Place, bool, error)
	Put(ctx context.Context, key string, p Place) error
}

// NormalizeQuery folds case and whitespace so equivalent queries share a key.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Cached fronts a Geocoder with a Store and collapses concurrent misses for
// the same key into one upstream request. Not-found results are not stored.
type Cached struct {
	next    Geocoder
	store   Store
	metrics *metrics.Metrics
	log     zerolog.Logger
	group   singleflight.Group

	// Timeout bounds a shared upstream lookup.
	Timeout time.Duration
}

// DefaultLookupTimeout is the default Cached.Timeout.
const DefaultLookupTimeout = 30 * time.Second

// NewCached wraps next. store and m may be nil.
func NewCached(next Geocoder, store Store, m *metrics.Metrics, log zerolog.Logger) *Cached {
	return &Cached{next: next, store: store, metrics: m, log: log, Timeout: DefaultLookupTimeout}
}

// Lookup implements Geocoder.
func (c *Cached) Lookup(ctx context.Context, query string) (Place, error) {
	key := NormalizeQuery(query)
	if key == "" {
		return Place{}, fmt.Errorf("empty query: %w", ErrNotFound)
	}

	if c.store != nil {
		p, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Str("query", key).Msg("geocode cache read failed")
		case ok:
			c.metrics.IncGeocode(metrics.GeocodeHit)
			return p, nil
		}
	}

	// The flight outlives any one caller; each caller still stops waiting
	// when its own ctx is done.
	ch := c.group.DoChan(key, func() (any, error) {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultLookupTimeout
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		p, err := c.next.Lookup(fctx, query)
		if err != nil {
			return Place{}, err
		}
		if c.store != nil {
			if perr := c.store.Put(fctx, key, p); perr != nil {
				c.log.Warn().Err(perr).Str("query", key).Msg("geocode cache write failed")
			}
		}
		return p, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Place{}, ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared

	switch {
	case errors.Is(err, ErrNotFound):
		c.metrics.IncGeocode(metrics.GeocodeNotFound)
	case err != nil:
		c.metrics.IncGeocode(metrics.GeocodeError)
	default:
		c.metrics.IncGeocode(metrics.GeocodeMiss)
	}
	if err != nil {
		return Place{}, err
	}
	if shared {
		c.log.Debug().Str("query", key).Msg("geocode lookup shared")
	}
	return v.(Place), nil
}

// SQLStore keeps lookups in the geocode_cache table.
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (Place, bool, error) {
	if s.DB == nil {
		return Place{}, false, errors.New("geocode cache: db is nil")
	}
	var p Place
	err := s.DB.QueryRowContext(ctx,
		`SELECT name, lon, lat FROM geocode_cache WHERE query = ?`, key,
	).Scan(&p.Name, &p.Lng, &p.Lat)
	if errors.Is(err, sql.ErrNoRows) {
		return Place{}, false, nil
	}
	if err != nil {
		return Place{}, false, fmt.Errorf("get geocode cache: %w", err)
	}
	return p, true, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, key string, p Place) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("insert geocode cache: empty query key")
	}
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO geocode_cache (query, name, lon, lat, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (query) DO UPDATE
	SET name = EXCLUDED.name,
		lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		updated_at = EXCLUDED.updated_at;
	`, key, p.Name, p.Lng, p.Lat)
	if err != nil {
		return fmt.Errorf("insert geocode cache query=%q: %w", key, err)
	}
	return nil
}

// Entry is one cached lookup.
type Entry struct {
	Query     string    `json:"query" doc:"Normalized query"`
	Place     Place     `json:"place" doc:"Cached result"`
	UpdatedAt time.Time `json:"updatedAt" doc:"Last refresh"`
}

// List returns up to limit cached lookups, most recent first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT query, name, lon, lat, updated_at FROM geocode_cache ORDER BY updated_at DESC, query LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list geocode cache: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Query, &e.Place.Name, &e.Place.Lng, &e.Place.Lat, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan geocode cache: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes every cached lookup and returns how many were removed.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("geocode cache: db is nil")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM geocode_cache`)
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: %w", err)
	}
	return res.RowsAffected()
}
