package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/db"
	"github.com/joeblew999/plat-map/internal/metrics"
)

type countingGeocoder struct {
	calls atomic.Int32
	delay time.Duration
	place Place
	err   error
}

func (g *countingGeocoder) Lookup(ctx context.Context, query string) (Place, error) {
	g.calls.Add(1)
	time.Sleep(g.delay)
	return g.place, g.err
}

type memStore struct {
	mu sync.Mutex
	m  map[string]Place
}

func (s *memStore) Get(_ context.Context, key string) (Place, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[key]
	return p, ok, nil
}

func (s *memStore) Put(_ context.Context, key string, p Place) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]Place{}
	}
	s.m[key] = p
	return nil
}

var paris = Place{Name: "Paris, France", Lng: 2.3522, Lat: 48.8566}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  New   YORK\t"); got != "new york" {
		t.Fatalf("got %q", got)
	}
}

func TestCachedHitsStore(t *testing.T) {
	next := &countingGeocoder{place: paris}
	store := &memStore{}
	c := NewCached(next, store, metrics.New(), zerolog.Nop())

	for _, q := range []string{"Paris", " paris ", "PARIS"} {
		p, err := c.Lookup(context.Background(), q)
		if err != nil || p != paris {
			t.Fatalf("Lookup(%q) = %+v, %v", q, p, err)
		}
	}
	if next.calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", next.calls.Load())
	}
}

func TestCachedDoesNotStoreNotFound(t *testing.T) {
	next := &countingGeocoder{err: ErrNotFound}
	store := &memStore{}
	c := NewCached(next, store, nil, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := c.Lookup(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if next.calls.Load() != 2 {
		t.Fatalf("upstream calls = %d, want 2", next.calls.Load())
	}
	if len(store.m) != 0 {
		t.Fatalf("store = %v", store.m)
	}
}

func TestCachedCollapsesConcurrentMisses(t *testing.T) {
	next := &countingGeocoder{place: paris, delay: 100 * time.Millisecond}
	c := NewCached(next, nil, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Lookup(context.Background(), "Paris"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if next.calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", next.calls.Load())
	}
}

type gatedGeocoder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedGeocoder) Lookup(ctx context.Context, query string) (Place, error) {
	close(g.started)
	select {
	case <-g.release:
		return paris, nil
	case <-ctx.Done():
		return Place{}, ctx.Err()
	}
}

func TestCachedSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	next := &gatedGeocoder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCached(next, nil, nil, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Lookup(firstCtx, "Paris")
		first <- err
	}()
	<-next.started

	second := make(chan error, 1)
	var got Place
	go func() {
		p, err := c.Lookup(context.Background(), "paris")
		got = p
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err = %v", err)
	}
	close(next.release)
	if err := <-second; err != nil {
		t.Fatalf("second caller err = %v", err)
	}
	if got != paris {
		t.Fatalf("second caller place = %+v", got)
	}
}

func TestCachedEmptyQuery(t *testing.T) {
	next := &countingGeocoder{place: paris}
	c := NewCached(next, nil, nil, zerolog.Nop())
	if _, err := c.Lookup(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if next.calls.Load() != 0 {
		t.Fatal("empty query reached upstream")
	}
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	s := NewSQLStore(conn)
	if _, ok, err := s.Get(ctx, "paris"); err != nil || ok {
		t.Fatalf("empty Get = %v, %v", ok, err)
	}
	if err := s.Put(ctx, "paris", paris); err != nil {
		t.Fatal(err)
	}
	moved := Place{Name: "Paris", Lng: 2.35, Lat: 48.85}
	if err := s.Put(ctx, "paris", moved); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := s.Get(ctx, "paris")
	if err != nil || !ok || got != moved {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
	if err := s.Put(ctx, " ", paris); err == nil {
		t.Fatal("blank key accepted")
	}
}

func TestSQLStoreListAndPurge(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	s := NewSQLStore(conn)
	for _, q := range []string{"paris", "london"} {
		if err := s.Put(ctx, q, paris); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if one, _ := s.List(ctx, 1); len(one) != 1 {
		t.Fatalf("limit ignored: %d entries", len(one))
	}

	n, err := s.Purge(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Purge = %d, %v", n, err)
	}
	if entries, _ := s.List(ctx, 10); len(entries) != 0 {
		t.Fatalf("after purge: %+v", entries)
	}
}
