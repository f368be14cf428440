// Package mapsession owns the live map instance of a page and keeps the
// displayed coordinate, the layer groups and the engine consistent.
//
// Lifecycle: Unmounted → Mounting → Ready → Unmounted. Layer calls are only
// issued to the engine once it reports load-complete; toggles made while
// Mounting are queued and flushed in arrival order on entering Ready.
package mapsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/engine"
	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/layers"
)

var (
	ErrAlreadyMounted    = errors.New("map session already mounted")
	ErrUnknownLayerGroup = errors.New("unknown layer group")
	ErrNotMounted        = errors.New("map session not mounted")
)

// State is the controller lifecycle state.
type State int

const (
	Unmounted State = iota
	Mounting
	Ready
)

func (s State) String() string {
	switch s {
	case Mounting:
		return "mounting"
	case Ready:
		return "ready"
	default:
		return "unmounted"
	}
}

// Config tunes a Controller.
type Config struct {
	Style       string
	FlyDuration time.Duration
	// Layers is the group state reported by Layers before the first Mount.
	Layers []layers.Group
	Logger      zerolog.Logger
	// OnLayerToggle observes every acknowledged toggle; used for metrics.
	OnLayerToggle func(groupID string, visible bool)
}

type toggle struct {
	groupID string
	visible bool
}

// Controller is the single owner of one engine handle.
type Controller struct {
	eng engine.Engine
	cfg Config
	log zerolog.Logger

	// engineMu serializes every mutating engine call; taken before mu.
	engineMu sync.Mutex
	// dispatchMu is held while the viewport handler runs; taken before mu.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	state   State
	gen     uint64
	handle  engine.Handle
	current geo.Coordinate // full precision, last engine report
	groups  []layers.Group
	index   map[string]int
	hidden  []string // groups hidden at mount time
	pending []toggle
	handler func(geo.Coordinate)
}

// NewController returns an unmounted controller over eng.
func NewController(eng engine.Engine, cfg Config) *Controller {
	if cfg.Style == "" {
		cfg.Style = engine.DefaultStyle
	}
	c := &Controller{eng: eng, cfg: cfg, log: cfg.Logger}
	c.setGroups(cfg.Layers)
	return c
}

func (c *Controller) setGroups(groups []layers.Group) {
	c.groups = layers.Clone(groups)
	c.index = make(map[string]int, len(c.groups))
	for i, g := range c.groups {
		c.index[g.ID] = i
	}
}

// Mount creates the engine instance centred at initial and registers the
// viewport listener. Layer sync waits for load-complete.
func (c *Controller) Mount(ctx context.Context, container string, initial geo.Coordinate, initialLayers []layers.Group) error {
	if err := initial.Validate(); err != nil {
		return err
	}

	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.state != Unmounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.gen++
	gen := c.gen
	c.state = Mounting
	c.current = initial
	c.setGroups(initialLayers)
	c.hidden = nil
	c.pending = nil
	for _, g := range c.groups {
		if !g.Visible {
			c.hidden = append(c.hidden, g.ID)
		}
	}
	c.mu.Unlock()

	h, err := c.eng.Create(ctx, engine.Options{
		Container: container,
		Style:     c.cfg.Style,
		Center:    initial.Point(),
		Zoom:      initial.Zoom,
	})
	if err != nil {
		c.mu.Lock()
		c.state = Unmounted
		c.setGroups(c.cfg.Layers)
		c.hidden = nil
		c.mu.Unlock()
		return fmt.Errorf("create map: %w", err)
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	h.OnViewportChange(func(vp engine.Viewport) { c.viewportChanged(gen, vp) })
	h.OnLoadComplete(func() { c.loadCompleted(gen) })

	c.log.Debug().Str("container", container).Stringer("center", initial).Msg("map mounted")
	return nil
}

// Recenter requests an animated transition to target. An absent zoom keeps
// the current engine zoom. Before mount and while Mounting it is a no-op.
func (c *Controller) Recenter(target geo.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.state != Ready {
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("recenter dropped")
		return nil
	}
	h := c.handle
	dest := target.Resolve(c.current.Zoom)
	c.mu.Unlock()

	if err := h.FlyTo(dest.Point(), dest.Zoom, engine.FlyOptions{Duration: c.cfg.FlyDuration, Essential: true}); err != nil {
		return fmt.Errorf("fly to %s: %w", dest, err)
	}
	return nil
}

// SetLayerVisibility records the group's visibility and mirrors it to every
// target layer in order. Every target is attempted; failures are joined.
func (c *Controller) SetLayerVisibility(groupID string, visible bool) error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.state == Unmounted {
		c.mu.Unlock()
		return fmt.Errorf("layer group %q: %w", groupID, ErrNotMounted)
	}
	i, ok := c.index[groupID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("layer group %q: %w", groupID, ErrUnknownLayerGroup)
	}
	c.groups[i].Visible = visible
	targets := append([]string(nil), c.groups[i].TargetLayerIDs...)
	if c.state == Mounting {
		c.pending = append(c.pending, toggle{groupID: groupID, visible: visible})
		c.mu.Unlock()
		c.toggled(groupID, visible)
		return nil
	}
	h := c.handle
	c.mu.Unlock()

	c.toggled(groupID, visible)
	return c.apply(h, groupID, targets, visible)
}

// OnViewportChange replaces the viewport handler. Values are rounded to
// display precision. nil removes the handler.
func (c *Controller) OnViewportChange(fn func(geo.Coordinate)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Unmount destroys the engine instance and detaches listeners. No viewport
// handler runs after Unmount returns. Safe to call when not mounted.
func (c *Controller) Unmount() error {
	c.engineMu.Lock()
	c.mu.Lock()
	if c.state == Unmounted {
		c.mu.Unlock()
		c.engineMu.Unlock()
		return nil
	}
	h := c.handle
	c.state = Unmounted
	c.gen++
	c.handle = nil
	c.pending = nil
	c.mu.Unlock()

	var err error
	if h != nil {
		h.OnViewportChange(nil)
		h.OnLoadComplete(nil)
		err = h.Destroy()
	}
	c.engineMu.Unlock()

	// Wait out a handler that started before the state change.
	c.dispatchMu.Lock()
	c.dispatchMu.Unlock()

	c.log.Debug().Msg("map unmounted")
	if err != nil {
		return fmt.Errorf("destroy map: %w", err)
	}
	return nil
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the displayed coordinate.
func (c *Controller) Current() geo.Coordinate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Rounded()
}

// Layers returns the acknowledged local layer state, or the configured
// groups before the first mount.
func (c *Controller) Layers() []layers.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return layers.Clone(c.groups)
}

func (c *Controller) viewportChanged(gen uint64, vp engine.Viewport) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state == Unmounted {
		c.mu.Unlock()
		return
	}
	c.current = geo.Coordinate{Lng: vp.Center.Lon(), Lat: vp.Center.Lat(), Zoom: vp.Zoom}
	shown := c.current.Rounded()
	fn := c.handler
	c.mu.Unlock()

	if fn != nil {
		fn(shown)
	}
}

func (c *Controller) loadCompleted(gen uint64) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state != Mounting {
		c.mu.Unlock()
		return
	}
	c.state = Ready
	h := c.handle
	ops := make([]toggle, 0, len(c.hidden)+len(c.pending))
	for _, id := range c.hidden {
		ops = append(ops, toggle{groupID: id, visible: false})
	}
	ops = append(ops, c.pending...)
	c.hidden, c.pending = nil, nil
	targets := make([][]string, len(ops))
	for i, op := range ops {
		targets[i] = append([]string(nil), c.groups[c.index[op.groupID]].TargetLayerIDs...)
	}
	c.mu.Unlock()

	c.log.Debug().Int("layer_ops", len(ops)).Msg("map ready")
	for i, op := range ops {
		if err := c.apply(h, op.groupID, targets[i], op.visible); err != nil {
			c.log.Warn().Err(err).Str("group", op.groupID).Msg("deferred layer sync failed")
		}
	}
}

// apply issues one engine call per target id. Caller holds engineMu.
func (c *Controller) apply(h engine.Handle, groupID string, targets []string, visible bool) error {
	v := engine.VisibilityOf(visible)
	var errs []error
	for _, id := range targets {
		if err := h.SetLayerVisibility(id, v); err != nil {
			errs = append(errs, fmt.Errorf("layer %q: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Warn().Err(err).Str("group", groupID).Bool("visible", visible).Msg("layer visibility partially failed")
		return fmt.Errorf("layer group %q: %w", groupID, err)
	}
	return nil
}

func (c *Controller) toggled(groupID string, visible bool) {
	if c.cfg.OnLayerToggle != nil {
		c.cfg.OnLayerToggle(groupID, visible)
	}
}
