package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/geocode"
)

type stubGeocoder struct {
	mu      sync.Mutex
	queries []string
	place   geocode.Place
	err     error
	release chan struct{}
}

func (g *stubGeocoder) Lookup(ctx context.Context, query string) (geocode.Place, error) {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	g.mu.Unlock()
	if g.release != nil {
		<-g.release
	}
	return g.place, g.err
}

func (g *stubGeocoder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

type recorder struct {
	mu      sync.Mutex
	targets []geo.Target
	err     error
}

func (r *recorder) Recenter(t geo.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.targets = append(r.targets, t)
	return nil
}

func (r *recorder) all() []geo.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geo.Target(nil), r.targets...)
}

func newSearch(g geocode.Geocoder, r Recenterer) *SearchPanel {
	return NewSearchPanel(g, r, geo.NewYork, zerolog.Nop())
}

func TestInitialManualFields(t *testing.T) {
	p := newSearch(&stubGeocoder{}, &recorder{})
	st := p.State()
	if st.Lng != "-74.006" || st.Lat != "40.7128" || st.Message != "" {
		t.Fatalf("state = %+v", st)
	}
}

func TestSearchBlankQuerySendsNothing(t *testing.T) {
	g := &stubGeocoder{}
	p := newSearch(g, &recorder{})
	for _, q := range []string{"", "   ", "\t\n"} {
		if got := p.Search(context.Background(), q); got != Skipped {
			t.Fatalf("Search(%q) = %s", q, got)
		}
	}
	if g.count() != 0 {
		t.Fatal("blank query reached the geocoder")
	}
}

func TestSearchFound(t *testing.T) {
	g := &stubGeocoder{place: geocode.Place{Name: "Paris, France", Lng: 2.3522, Lat: 48.8566}}
	r := &recorder{}
	p := newSearch(g, r)

	if got := p.Search(context.Background(), "  Paris "); got != Found {
		t.Fatalf("outcome = %s", got)
	}
	targets := r.all()
	if len(targets) != 1 {
		t.Fatalf("recenters = %+v", targets)
	}
	if c := targets[0].Resolve(0); c != (geo.Coordinate{Lng: 2.3522, Lat: 48.8566, Zoom: 12}) {
		t.Fatalf("target = %+v", c)
	}
	st := p.State()
	if st.Lng != "2.3522" || st.Lat != "48.8566" || st.Message != "" || st.Place != "Paris, France" || st.Searching {
		t.Fatalf("state = %+v", st)
	}
	if g.queries[0] != "Paris" {
		t.Fatalf("query sent = %q", g.queries[0])
	}
}

func TestSearchNotFound(t *testing.T) {
	g := &stubGeocoder{err: fmt.Errorf("%q: %w", "xyzzy", geocode.ErrNotFound)}
	r := &recorder{}
	p := newSearch(g, r)

	if got := p.Search(context.Background(), "xyzzy"); got != NotFound {
		t.Fatalf("outcome = %s", got)
	}
	if st := p.State(); st.Message != MsgNoResults || st.Lng != "-74.006" {
		t.Fatalf("state = %+v", st)
	}
	if len(r.all()) != 0 {
		t.Fatal("map moved on zero results")
	}
}

func TestSearchTransportFailure(t *testing.T) {
	g := &stubGeocoder{err: fmt.Errorf("%w: status 500", geocode.ErrTransport)}
	r := &recorder{}
	p := newSearch(g, r)

	if got := p.Search(context.Background(), "Paris"); got != Failed {
		t.Fatalf("outcome = %s", got)
	}
	if st := p.State(); st.Message != MsgSearchFailed {
		t.Fatalf("message = %q", st.Message)
	}
	if len(r.all()) != 0 {
		t.Fatal("map moved on failure")
	}

	g.err = nil
	g.place = geocode.Place{Lng: 1, Lat: 2}
	p.Search(context.Background(), "Somewhere")
	if st := p.State(); st.Message != "" {
		t.Fatalf("message not cleared by next search: %q", st.Message)
	}
}

func TestSearchSingleFlight(t *testing.T) {
	g := &stubGeocoder{place: geocode.Place{Lng: 1, Lat: 2}, release: make(chan struct{})}
	p := newSearch(g, &recorder{})

	done := make(chan Outcome)
	go func() { done <- p.Search(context.Background(), "first") }()

	deadline := time.Now().Add(time.Second)
	for g.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first search never started")
		}
		time.Sleep(time.Millisecond)
	}
	if !p.State().Searching {
		t.Fatal("searching flag not set")
	}
	if got := p.Search(context.Background(), "second"); got != Busy {
		t.Fatalf("concurrent search = %s, want busy", got)
	}

	close(g.release)
	if got := <-done; got != Found {
		t.Fatalf("first search = %s", got)
	}
	if g.count() != 1 {
		t.Fatalf("geocoder calls = %d", g.count())
	}
	if p.State().Searching {
		t.Fatal("searching flag not cleared")
	}
}

func TestSearchResultAfterCloseDiscarded(t *testing.T) {
	g := &stubGeocoder{place: geocode.Place{Lng: 1, Lat: 2}, release: make(chan struct{})}
	r := &recorder{}
	p := newSearch(g, r)

	done := make(chan Outcome)
	go func() { done <- p.Search(context.Background(), "late") }()
	for g.count() == 0 {
		time.Sleep(time.Millisecond)
	}
	p.Close()
	close(g.release)

	if got := <-done; got != Discarded {
		t.Fatalf("outcome = %s", got)
	}
	if len(r.all()) != 0 {
		t.Fatal("closed panel recentred the map")
	}
}

func TestGoTo(t *testing.T) {
	cases := []struct {
		lng, lat string
		want     Outcome
		msg      string
	}{
		{"2.3522", "48.8566", Moved, ""},
		{" -180 ", "90", Moved, ""},
		{"abc", "40", Rejected, MsgInvalidCoordinates},
		{"10", "", Rejected, MsgInvalidCoordinates},
		{"200", "40", Rejected, MsgOutOfRange},
		{"10", "-90.5", Rejected, MsgOutOfRange},
		{"abc", "200", Rejected, MsgInvalidCoordinates},
	}
	for _, tc := range cases {
		r := &recorder{}
		p := newSearch(&stubGeocoder{}, r)
		if got := p.GoTo(tc.lng, tc.lat); got != tc.want {
			t.Errorf("GoTo(%q, %q) = %s, want %s", tc.lng, tc.lat, got, tc.want)
			continue
		}
		st := p.State()
		if st.Message != tc.msg {
			t.Errorf("GoTo(%q, %q) message = %q, want %q", tc.lng, tc.lat, st.Message, tc.msg)
		}
		if st.Lng != tc.lng || st.Lat != tc.lat {
			t.Errorf("fields not kept: %+v", st)
		}
		moved := len(r.all()) == 1
		if moved != (tc.want == Moved) {
			t.Errorf("GoTo(%q, %q) recentred = %v", tc.lng, tc.lat, moved)
		}
		if moved && r.all()[0].Zoom != nil {
			t.Errorf("manual entry must keep the current zoom")
		}
	}
}

func TestGoToClearsMessage(t *testing.T) {
	p := newSearch(&stubGeocoder{}, &recorder{})
	p.GoTo("x", "y")
	p.GoTo("1", "2")
	if msg := p.State().Message; msg != "" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRecenterErrorReported(t *testing.T) {
	r := &recorder{err: errors.New("engine gone")}
	p := newSearch(&stubGeocoder{place: geocode.Place{Lng: 1, Lat: 2}}, r)
	if got := p.Search(context.Background(), "x"); got != Failed {
		t.Fatalf("outcome = %s", got)
	}
	if p.State().Lng != "-74.006" {
		t.Fatal("fields updated although the map did not move")
	}
}

func TestGoToEngineFailure(t *testing.T) {
	r := &recorder{err: errors.New("remote map command buffer full")}
	p := newSearch(&stubGeocoder{}, r)
	if got := p.GoTo("2.3522", "48.8566"); got != Failed {
		t.Fatalf("outcome = %s", got)
	}
	if msg := p.State().Message; msg != MsgMoveFailed {
		t.Fatalf("message = %q, want %q", msg, MsgMoveFailed)
	}
}
