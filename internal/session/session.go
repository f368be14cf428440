// Package session keeps one map session per page: a controller, its two
// panels and the engine driving it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/engine"
	"github.com/joeblew999/plat-map/internal/engine/remote"
	"github.com/joeblew999/plat-map/internal/engine/sim"
	"github.com/joeblew999/plat-map/internal/events"
	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/geocode"
	"github.com/joeblew999/plat-map/internal/layers"
	"github.com/joeblew999/plat-map/internal/mapsession"
	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/panel"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrStreamActive = errors.New("session already has an engine stream")
	ErrClosed       = errors.New("session closed")
)

// Container is the DOM id of the map element on the map page.
const Container = "map"

// Options configures a Manager.
type Options struct {
	Registry      *layers.Registry
	Geocoder      geocode.Geocoder
	Initial       geo.Coordinate
	Style         string
	FlyDuration   time.Duration
	IdleTTL       time.Duration
	CommandBuffer int
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Session is one page's map state.
type Session struct {
	ID       string
	Created  time.Time
	Headless bool

	Controller *mapsession.Controller
	Search     *panel.SearchPanel
	Controls   *panel.ControlsPanel
	Events     *events.Bus

	// Bridge drives the browser map; nil for headless sessions.
	Bridge *remote.Bridge
	// Sim is the in-process engine; nil for browser sessions.
	Sim *sim.Engine

	initial geo.Coordinate
	layers  []layers.Group

	mu        sync.Mutex
	lastSeen  time.Time
	streaming bool
	closed    bool
}

// Info is the JSON view of a session.
type Info struct {
	ID       string         `json:"id" doc:"Session ID"`
	State    string         `json:"state" doc:"Controller state" enum:"unmounted,mounting,ready"`
	Headless bool           `json:"headless" doc:"Driven by the in-process engine instead of a browser"`
	Center   geo.Coordinate `json:"center" doc:"Displayed coordinate"`
	Tile     string         `json:"tile" doc:"Slippy-map tile under the centre, z/x/y" example:"12/1205/1540"`
	Layers   []layers.Group `json:"layers" doc:"Acknowledged layer group state"`
	Created  time.Time      `json:"created" doc:"Creation time"`
}

// Info returns a snapshot.
func (s *Session) Info() Info {
	c := s.Controller.Current()
	t := c.Tile()
	return Info{
		ID:       s.ID,
		State:    s.Controller.State().String(),
		Headless: s.Headless,
		Center:   c,
		Tile:     fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y),
		Layers:   s.Controller.Layers(),
		Created:  s.Created,
	}
}

// Mount mounts the controller with the session's initial viewport and layers.
func (s *Session) Mount(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.Controller.Mount(ctx, Container, s.initial, s.layers)
}

// Attach marks the engine stream connected. Only one stream per session.
func (s *Session) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.streaming {
		return ErrStreamActive
	}
	s.streaming = true
	s.lastSeen = time.Now()
	return nil
}

// Touch records activity for the idle reaper.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return 0
	}
	return now.Sub(s.lastSeen)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close tears the session down once: panels first, then the controller,
// then the bridge so the page stream ends.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Search.Close()
	err := s.Controller.Unmount()
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	s.Events.Publish(events.Event{Kind: events.Closed, Session: s.ID})
	return err
}

// Manager owns every live session.
type Manager struct {
	opts Options
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = layers.MustDefault()
	}
	if opts.Initial == (geo.Coordinate{}) {
		opts.Initial = geo.NewYork
	}
	if opts.Style == "" {
		opts.Style = engine.DefaultStyle
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "sessions").Logger(),
		sessions: map[string]*Session{},
	}
}

// Create registers a new session. Headless sessions use the in-process
// engine and are mounted immediately; browser sessions mount when their
// engine stream connects.
func (m *Manager) Create(ctx context.Context, headless bool) (*Session, error) {
	id := uuid.NewString()
	log := m.log.With().Str("session", id).Logger()

	s := &Session{
		ID:       id,
		Created:  time.Now(),
		Headless: headless,
		Events:   events.NewBus(32),
		initial:  m.opts.Initial,
		layers:   m.opts.Registry.Groups(),
		lastSeen: time.Now(),
	}

	var eng engine.Engine
	if headless {
		s.Sim = sim.New()
		eng = s.Sim
	} else {
		s.Bridge = remote.NewBridge(m.opts.CommandBuffer)
		eng = s.Bridge
	}

	s.Controller = mapsession.NewController(eng, mapsession.Config{
		Style:       m.opts.Style,
		FlyDuration: m.opts.FlyDuration,
		Layers:      s.layers,
		Logger:      log,
		OnLayerToggle: func(group string, visible bool) {
			m.opts.Metrics.IncLayerToggle(group, visible)
			s.Events.Publish(events.Event{Kind: events.Layers, Session: id})
		},
	})
	s.Controller.OnViewportChange(func(c geo.Coordinate) {
		s.Events.Publish(events.Event{Kind: events.Viewport, Session: id, Coord: c})
	})
	s.Search = panel.NewSearchPanel(m.opts.Geocoder, s.Controller, s.initial, log)
	s.Controls = panel.NewControlsPanel(s.Controller, log)

	if headless {
		if err := s.Mount(ctx); err != nil {
			return nil, fmt.Errorf("mount headless session: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.opts.Metrics.SessionOpened()

	log.Info().Bool("headless", headless).Msg("session created")
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	s.Touch()
	return s, nil
}

// Close unmounts and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	m.opts.Metrics.SessionClosed()
	m.log.Info().Str("session", id).Msg("session closed")
	return s.close()
}

// List returns the live sessions, unordered.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions without a stream that have been idle longer than
// the TTL. It returns how many were closed.
func (m *Manager) Reap(now time.Time) int {
	var stale []string
	for _, s := range m.List() {
		if s.idleSince(now) > m.opts.IdleTTL {
			stale = append(stale, s.ID)
		}
	}
	for _, id := range stale {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn().Err(err).Str("session", id).Msg("reap failed")
		}
	}
	return len(stale)
}

// Run reaps idle sessions until ctx is done, then closes everything.
func (m *Manager) Run(ctx context.Context) {
	interval := m.opts.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case now := <-ticker.C:
			if n := m.Reap(now); n > 0 {
				m.log.Info().Int("reaped", n).Msg("idle sessions closed")
			}
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	for _, s := range m.List() {
		if err := m.Close(s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.Warn().Err(err).Str("session", s.ID).Msg("close failed")
		}
	}
}
