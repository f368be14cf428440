// Package engine describes the capability set consumed from the mapping
// library: create a map, listen for viewport and load-complete events,
// fly to a centre, toggle layer visibility, destroy.
package engine

import (
	"context"
	"time"

	"github.com/paulmach/orb"
)

// Visibility is a renderer layer's layout visibility.
type Visibility string

const (
	Visible Visibility = "visible"
	None    Visibility = "none"
)

// VisibilityOf maps a UI checkbox state onto a layout visibility value.
func VisibilityOf(visible bool) Visibility {
	if visible {
		return Visible
	}
	return None
}

// DefaultStyle is the street style the map page uses when none is configured.
const DefaultStyle = "mapbox://styles/mapbox/streets-v12"

// Options configures a new map instance.
type Options struct {
	Container string    // DOM element id the map renders into
	Style     string    // style reference
	Center    orb.Point // lng, lat
	Zoom      float64
}

// FlyOptions tunes an animated transition.
type FlyOptions struct {
	Duration  time.Duration // zero lets the engine choose
	Essential bool          // run even when the user prefers reduced motion
}

// Viewport is a centre/zoom report from the engine, at full precision.
type Viewport struct {
	Center orb.Point
	Zoom   float64
}

// Engine creates map instances.
type Engine interface {
	Create(ctx context.Context, opts Options) (Handle, error)
}

// Handle is one live map instance. Callbacks may be invoked from any
// goroutine but never from inside a Handle method call.
type Handle interface {
	// OnViewportChange replaces the viewport listener. nil detaches it.
	OnViewportChange(fn func(Viewport))
	// OnLoadComplete replaces the load-complete listener. nil detaches it.
	OnLoadComplete(fn func())
	FlyTo(center orb.Point, zoom float64, opts FlyOptions) error
	SetLayerVisibility(layerID string, v Visibility) error
	Destroy() error
}
