// Package sim is an in-memory mapping engine. It keeps centre, zoom and
// layer visibility, emits load-complete and viewport events from its own
// goroutine, and records every call. Headless sessions and tests use it.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-map/internal/engine"
)

var (
	// ErrStyleNotLoaded is returned by layer calls issued before load-complete.
	ErrStyleNotLoaded = errors.New("style is not done loading")
	// ErrDestroyed is returned by calls on a destroyed map.
	ErrDestroyed = errors.New("map has been destroyed")
)

// Op names a recorded call.
type Op string

const (
	OpCreate     Op = "create"
	OpFlyTo      Op = "flyTo"
	OpVisibility Op = "setLayoutProperty"
	OpDestroy    Op = "destroy"
)

// Call is one recorded engine call.
type Call struct {
	Op         Op
	LayerID    string
	Visibility engine.Visibility
	Center     orb.Point
	Zoom       float64
}

// Engine creates simulated maps.
type Engine struct {
	// LoadDelay is how long after Create the load-complete event fires.
	LoadDelay time.Duration
	// ManualLoad disables the automatic load-complete; call Map.Load instead.
	ManualLoad bool
	// Reject lists layer ids whose visibility calls fail.
	Reject map[string]error

	mu   sync.Mutex
	maps []*Map
}

// New returns an engine that loads immediately.
func New() *Engine {
	return &Engine{}
}

// Create implements engine.Engine.
func (e *Engine) Create(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := &Map{
		center: opts.Center,
		zoom:   opts.Zoom,
		layers: map[string]engine.Visibility{},
		reject: e.Reject,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.calls = append(m.calls, Call{Op: OpCreate, Center: opts.Center, Zoom: opts.Zoom})
	go m.dispatch()

	e.mu.Lock()
	e.maps = append(e.maps, m)
	e.mu.Unlock()

	if !e.ManualLoad {
		if e.LoadDelay > 0 {
			m.mu.Lock()
			m.timers = append(m.timers, time.AfterFunc(e.LoadDelay, m.Load))
			m.mu.Unlock()
		} else {
			m.Load()
		}
	}
	return m, nil
}

// Maps returns every map created so far.
func (e *Engine) Maps() []*Map {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Map(nil), e.maps...)
}

// Last returns the most recently created map, or nil.
func (e *Engine) Last() *Map {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.maps) == 0 {
		return nil
	}
	return e.maps[len(e.maps)-1]
}

// Map is a simulated map instance.
type Map struct {
	mu        sync.Mutex
	center    orb.Point
	zoom      float64
	layers    map[string]engine.Visibility
	reject    map[string]error
	loaded    bool
	loadFired bool
	destroyed bool
	calls     []Call
	timers    []*time.Timer

	onViewport func(engine.Viewport)
	onLoad     func()

	queue []func()
	wake  chan struct{}
	done  chan struct{}
}

// OnViewportChange implements engine.Handle.
func (m *Map) OnViewportChange(fn func(engine.Viewport)) {
	m.mu.Lock()
	m.onViewport = fn
	m.mu.Unlock()
}

// OnLoadComplete implements engine.Handle. A listener registered after the
// style finished loading is still notified once.
func (m *Map) OnLoadComplete(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoad = fn
	if m.loaded {
		m.fireLoadLocked()
	}
}

// Load marks the style loaded and emits load-complete once.
func (m *Map) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded || m.destroyed {
		return
	}
	m.loaded = true
	m.fireLoadLocked()
}

func (m *Map) fireLoadLocked() {
	if m.onLoad == nil || m.loadFired {
		return
	}
	m.loadFired = true
	fn := m.onLoad
	m.enqueueLocked(fn)
}

// FlyTo implements engine.Handle. A zero duration lands immediately; the
// viewport event is emitted after the centre and zoom are updated.
func (m *Map) FlyTo(center orb.Point, zoom float64, opts engine.FlyOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	m.calls = append(m.calls, Call{Op: OpFlyTo, Center: center, Zoom: zoom})
	if opts.Duration <= 0 {
		m.moveLocked(center, zoom)
		return nil
	}
	m.timers = append(m.timers, time.AfterFunc(opts.Duration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.destroyed {
			m.moveLocked(center, zoom)
		}
	}))
	return nil
}

// Pan simulates the user dragging or zooming the canvas.
func (m *Map) Pan(center orb.Point, zoom float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.destroyed {
		m.moveLocked(center, zoom)
	}
}

// SetLayerVisibility implements engine.Handle.
func (m *Map) SetLayerVisibility(layerID string, v engine.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	m.calls = append(m.calls, Call{Op: OpVisibility, LayerID: layerID, Visibility: v})
	if !m.loaded {
		return ErrStyleNotLoaded
	}
	if err, ok := m.reject[layerID]; ok {
		if err == nil {
			err = fmt.Errorf("layer %q does not exist in the map's style", layerID)
		}
		return err
	}
	m.layers[layerID] = v
	return nil
}

// Destroy implements engine.Handle. Pending animations are cancelled and
// queued events are dropped.
func (m *Map) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil
	}
	m.destroyed = true
	m.calls = append(m.calls, Call{Op: OpDestroy})
	for _, t := range m.timers {
		t.Stop()
	}
	m.onViewport = nil
	m.onLoad = nil
	m.queue = nil
	close(m.done)
	return nil
}

// Visibility returns a layer's current visibility; layers start visible.
func (m *Map) Visibility(layerID string) engine.Visibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.layers[layerID]; ok {
		return v
	}
	return engine.Visible
}

// Viewport returns the current centre and zoom.
func (m *Map) Viewport() engine.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return engine.Viewport{Center: m.center, Zoom: m.zoom}
}

// Calls returns the recorded calls, optionally filtered by op.
func (m *Map) Calls(ops ...Op) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ops) == 0 {
		return append([]Call(nil), m.calls...)
	}
	var out []Call
	for _, c := range m.calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Destroyed reports whether Destroy was called.
func (m *Map) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func (m *Map) moveLocked(center orb.Point, zoom float64) {
	m.center, m.zoom = center, zoom
	vp := engine.Viewport{Center: center, Zoom: zoom}
	m.enqueueLocked(func() {
		m.mu.Lock()
		fn := m.onViewport
		m.mu.Unlock()
		if fn != nil {
			fn(vp)
		}
	})
}

func (m *Map) enqueueLocked(fn func()) {
	if m.destroyed {
		return
	}
	m.queue = append(m.queue, fn)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch runs queued events in order on a single goroutine.
func (m *Map) dispatch() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if m.destroyed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			fn := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			fn()
		}
	}
}
