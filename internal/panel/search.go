// Package panel holds the state behind the sidebar panels: location search
// with manual coordinate entry, and the layer checkboxes. Panels never touch
// the mapping engine; they only call the map session controller.
package panel

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/geocode"
)

// Messages shown under the search panel.
const (
	MsgNoResults          = "No results found for that location"
	MsgSearchFailed       = "Error searching for location"
	MsgInvalidCoordinates = "Please enter valid coordinates"
	MsgOutOfRange         = "Coordinates out of range"
	MsgMoveFailed         = "Error moving the map"
)

// Recenterer is the part of the map session the search panel drives.
type Recenterer interface {
	Recenter(target geo.Target) error
}

// Outcome reports what a Search or GoTo call did.
type Outcome int

const (
	// Skipped: blank query, nothing sent.
	Skipped Outcome = iota
	// Busy: a search was already in flight for this panel.
	Busy
	// Found: the map was recentred on the first result.
	Found
	NotFound
	Failed
	// Discarded: the panel was closed before the result arrived.
	Discarded
	// Moved: manual coordinates accepted and the map recentred.
	Moved
	// Rejected: manual coordinates failed validation.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Busy:
		return "busy"
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	case Discarded:
		return "discarded"
	case Moved:
		return "moved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// SearchState is a snapshot of the panel for rendering.
type SearchState struct {
	Lng       string `json:"manuallng"`
	Lat       string `json:"manuallat"`
	Message   string `json:"searcherror"`
	Searching bool   `json:"searching"`
	Place     string `json:"place"`
}

// SearchPanel runs at most one geocoding request at a time.
type SearchPanel struct {
	geocoder geocode.Geocoder
	target   Recenterer
	log      zerolog.Logger

	mu        sync.Mutex
	searching bool
	closed    bool
	lng, lat  string
	message   string
	place     string
}

// NewSearchPanel seeds the manual entry fields from initial.
func NewSearchPanel(g geocode.Geocoder, target Recenterer, initial geo.Coordinate, log zerolog.Logger) *SearchPanel {
	return &SearchPanel{
		geocoder: g,
		target:   target,
		log:      log,
		lng:      geo.FormatDegrees(initial.Lng),
		lat:      geo.FormatDegrees(initial.Lat),
	}
}

// Search geocodes query and recentres on the first result at the default
// search zoom. The manual fields are overwritten with the result.
func (p *SearchPanel) Search(ctx context.Context, query string) Outcome {
	query = strings.TrimSpace(query)
	if query == "" {
		return Skipped
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Discarded
	}
	if p.searching {
		p.mu.Unlock()
		return Busy
	}
	p.searching = true
	p.message = ""
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.searching = false
		p.mu.Unlock()
	}()

	place, err := p.geocoder.Lookup(ctx, query)
	if p.isClosed() {
		return Discarded
	}
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		p.setMessage(MsgNoResults)
		return NotFound
	case err != nil:
		p.log.Warn().Err(err).Str("query", query).Msg("location search failed")
		p.setMessage(MsgSearchFailed)
		return Failed
	}

	target := geo.At(place.Lng, place.Lat).WithZoom(geo.DefaultSearchZoom)
	if err := p.target.Recenter(target); err != nil {
		p.log.Warn().Err(err).Str("query", query).Stringer("target", target.Resolve(geo.DefaultSearchZoom)).Msg("recenter on search result failed")
		p.setMessage(MsgSearchFailed)
		return Failed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Discarded
	}
	p.lng = geo.FormatDegrees(place.Lng)
	p.lat = geo.FormatDegrees(place.Lat)
	p.place = place.Name
	return Found
}

// GoTo records the manual entry fields and recentres on them, keeping the
// current zoom.
func (p *SearchPanel) GoTo(lngText, latText string) Outcome {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Discarded
	}
	p.lng, p.lat = lngText, latText
	p.mu.Unlock()

	target, err := geo.ParseLngLat(lngText, latText)
	switch {
	case errors.Is(err, geo.ErrNotNumeric):
		p.setMessage(MsgInvalidCoordinates)
		return Rejected
	case err != nil:
		p.setMessage(MsgOutOfRange)
		return Rejected
	}

	p.setMessage("")
	if err := p.target.Recenter(target); err != nil {
		p.log.Warn().Err(err).Msg("recenter on manual coordinates failed")
		p.setMessage(MsgMoveFailed)
		return Failed
	}
	return Moved
}

// State returns a snapshot for rendering.
func (p *SearchPanel) State() SearchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return SearchState{
		Lng:       p.lng,
		Lat:       p.lat,
		Message:   p.message,
		Searching: p.searching,
		Place:     p.place,
	}
}

// Close marks the panel gone; an in-flight result is dropped.
func (p *SearchPanel) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *SearchPanel) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *SearchPanel) setMessage(msg string) {
	p.mu.Lock()
	if !p.closed {
		p.message = msg
	}
	p.mu.Unlock()
}
