// Package remote drives a mapping library running in the browser. Engine
// calls become Commands on a channel that the page's SSE stream forwards;
// the page reports load-complete and viewport changes back through Report*.
package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-map/internal/engine"
)

var (
	// ErrDestroyed is returned by calls on a destroyed handle.
	ErrDestroyed = errors.New("remote map destroyed")
	// ErrBackpressure is returned when the page is not draining commands.
	ErrBackpressure = errors.New("remote map command buffer full")
	// ErrClosed is returned by Create after the bridge was closed.
	ErrClosed = errors.New("remote bridge closed")
)

// Command ops understood by static/map.js.
const (
	OpCreate     = "create"
	OpFlyTo      = "flyTo"
	OpVisibility = "setLayoutProperty"
	OpDestroy    = "destroy"
)

// Command is one engine call serialized for the browser.
type Command struct {
	Op         string    `json:"op"`
	Handle     uint64    `json:"handle"`
	Container  string    `json:"container,omitempty"`
	Style      string    `json:"style,omitempty"`
	Center     []float64 `json:"center,omitempty"`
	Zoom       *float64  `json:"zoom,omitempty"`
	LayerID    string    `json:"layerId,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	DurationMS int64     `json:"durationMs,omitempty"`
	Essential  bool      `json:"essential,omitempty"`
}

// Bridge is the engine for a single page.
type Bridge struct {
	mu      sync.Mutex
	cmds    chan Command
	closed  bool
	next    uint64
	current *handle
}

// NewBridge returns a bridge buffering up to size commands.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = 256
	}
	return &Bridge{cmds: make(chan Command, size)}
}

// Commands is drained by the page stream.
func (b *Bridge) Commands() <-chan Command {
	return b.cmds
}

// Create implements engine.Engine.
func (b *Bridge) Create(ctx context.Context, opts engine.Options) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.next++
	h := &handle{bridge: b, id: b.next}
	zoom := opts.Zoom
	if err := b.sendLocked(Command{
		Op:        OpCreate,
		Handle:    h.id,
		Container: opts.Container,
		Style:     opts.Style,
		Center:    []float64{opts.Center.Lon(), opts.Center.Lat()},
		Zoom:      &zoom,
	}); err != nil {
		return nil, err
	}
	b.current = h
	return h, nil
}

// ReportLoaded delivers the page's load-complete for handle id.
func (b *Bridge) ReportLoaded(id uint64) bool {
	h := b.lookup(id)
	if h == nil {
		return false
	}
	h.loaded()
	return true
}

// ReportViewport delivers a viewport change for handle id.
func (b *Bridge) ReportViewport(id uint64, vp engine.Viewport) bool {
	h := b.lookup(id)
	if h == nil {
		return false
	}
	h.mu.Lock()
	fn := h.onViewport
	h.mu.Unlock()
	if fn != nil {
		fn(vp)
	}
	return true
}

// Close stops accepting commands and closes the channel.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.cmds)
}

func (b *Bridge) lookup(id uint64) *handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || (id != 0 && b.current.id != id) {
		return nil
	}
	return b.current
}

func (b *Bridge) send(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(cmd)
}

func (b *Bridge) sendLocked(cmd Command) error {
	if b.closed {
		return ErrClosed
	}
	select {
	case b.cmds <- cmd:
		return nil
	default:
		return ErrBackpressure
	}
}

type handle struct {
	bridge *Bridge
	id     uint64

	mu         sync.Mutex
	destroyed  bool
	isLoaded   bool
	loadFired  bool
	onViewport func(engine.Viewport)
	onLoad     func()
}

func (h *handle) OnViewportChange(fn func(engine.Viewport)) {
	h.mu.Lock()
	h.onViewport = fn
	h.mu.Unlock()
}

// OnLoadComplete registers fn; a load reported before registration is
// delivered on a separate goroutine.
func (h *handle) OnLoadComplete(fn func()) {
	h.mu.Lock()
	h.onLoad = fn
	fire := h.isLoaded && !h.loadFired && fn != nil
	if fire {
		h.loadFired = true
	}
	h.mu.Unlock()
	if fire {
		go fn()
	}
}

func (h *handle) loaded() {
	h.mu.Lock()
	if h.destroyed || h.isLoaded {
		h.mu.Unlock()
		return
	}
	h.isLoaded = true
	fn := h.onLoad
	if fn != nil {
		h.loadFired = true
	}
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *handle) FlyTo(center orb.Point, zoom float64, opts engine.FlyOptions) error {
	if h.isDestroyed() {
		return ErrDestroyed
	}
	return h.bridge.send(Command{
		Op:         OpFlyTo,
		Handle:     h.id,
		Center:     []float64{center.Lon(), center.Lat()},
		Zoom:       &zoom,
		DurationMS: opts.Duration.Milliseconds(),
		Essential:  opts.Essential,
	})
}

func (h *handle) SetLayerVisibility(layerID string, v engine.Visibility) error {
	if h.isDestroyed() {
		return ErrDestroyed
	}
	return h.bridge.send(Command{
		Op:         OpVisibility,
		Handle:     h.id,
		LayerID:    layerID,
		Visibility: string(v),
	})
}

func (h *handle) Destroy() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.onViewport = nil
	h.onLoad = nil
	h.mu.Unlock()

	b := h.bridge
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == h {
		b.current = nil
	}
	err := b.sendLocked(Command{Op: OpDestroy, Handle: h.id})
	if errors.Is(err, ErrClosed) {
		// The page is gone; nothing left to release on its side.
		return nil
	}
	return err
}

func (h *handle) isDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}
