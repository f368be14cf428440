// Package geo holds the coordinate value types shared by the map session,
// the panels and the geocoding client.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Display precision for coordinates shown in the UI.
const (
	DegreeDecimals = 4
	ZoomDecimals   = 2
)

// DefaultSearchZoom is the zoom applied to locations found by text search.
const DefaultSearchZoom = 12.0

var (
	// ErrInvalidCoordinate is the parent of every coordinate input failure.
	ErrInvalidCoordinate = errors.New("invalid coordinate input")
	// ErrNotNumeric means a longitude or latitude field did not parse as a number.
	ErrNotNumeric = fmt.Errorf("%w: not numeric", ErrInvalidCoordinate)
	// ErrOutOfRange means a value fell outside the valid longitude/latitude/zoom range.
	ErrOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidCoordinate)
)

// Coordinate is an immutable map viewport position.
type Coordinate struct {
	Lng  float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude in degrees" example:"-74.006"`
	Lat  float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude in degrees" example:"40.7128"`
	Zoom float64 `json:"zoom" minimum:"0" doc:"Zoom level" example:"12"`
}

// NewYork is the default starting viewport.
var NewYork = Coordinate{Lng: -74.006, Lat: 40.7128, Zoom: 12}

// Validate reports whether the coordinate is inside the valid ranges.
func (c Coordinate) Validate() error {
	if err := ValidateLngLat(c.Lng, c.Lat); err != nil {
		return err
	}
	if math.IsNaN(c.Zoom) || c.Zoom < 0 {
		return fmt.Errorf("%w: zoom %v", ErrOutOfRange, c.Zoom)
	}
	return nil
}

// Rounded returns the coordinate at display precision.
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{
		Lng:  round(c.Lng, DegreeDecimals),
		Lat:  round(c.Lat, DegreeDecimals),
		Zoom: round(c.Zoom, ZoomDecimals),
	}
}

// Point returns the centre as an orb.Point (lng, lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// Tile returns the slippy-map tile containing the centre at the floor of the zoom.
func (c Coordinate) Tile() maptile.Tile {
	z := c.Zoom
	if z < 0 {
		z = 0
	}
	if z > 22 {
		z = 22
	}
	return maptile.At(c.Point(), maptile.Zoom(uint32(z)))
}

func (c Coordinate) String() string {
	r := c.Rounded()
	return fmt.Sprintf("%s,%s@%s", FormatDegrees(r.Lng), FormatDegrees(r.Lat), strconv.FormatFloat(r.Zoom, 'f', -1, 64))
}

// Target is a recenter request. A nil Zoom keeps the current engine zoom.
type Target struct {
	Lng  float64  `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude in degrees"`
	Lat  float64  `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude in degrees"`
	Zoom *float64 `json:"zoom,omitempty" minimum:"0" doc:"Zoom level; omitted keeps the current zoom"`
}

// At returns a target that keeps the current zoom.
func At(lng, lat float64) Target {
	return Target{Lng: lng, Lat: lat}
}

// WithZoom returns a copy of t with an explicit zoom.
func (t Target) WithZoom(z float64) Target {
	t.Zoom = &z
	return t
}

// Validate reports whether the target is inside the valid ranges.
func (t Target) Validate() error {
	if err := ValidateLngLat(t.Lng, t.Lat); err != nil {
		return err
	}
	if t.Zoom != nil && (math.IsNaN(*t.Zoom) || *t.Zoom < 0) {
		return fmt.Errorf("%w: zoom %v", ErrOutOfRange, *t.Zoom)
	}
	return nil
}

// Resolve fills an absent zoom with current.
func (t Target) Resolve(current float64) Coordinate {
	z := current
	if t.Zoom != nil {
		z = *t.Zoom
	}
	return Coordinate{Lng: t.Lng, Lat: t.Lat, Zoom: z}
}

// ValidateLngLat checks longitude in [-180,180] and latitude in [-90,90].
func ValidateLngLat(lng, lat float64) error {
	if math.IsNaN(lng) || math.IsNaN(lat) {
		return ErrNotNumeric
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrOutOfRange, lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrOutOfRange, lat)
	}
	return nil
}

// ParseLngLat parses manual-entry text fields. Numeric parsing is checked for
// both fields before any range check.
func ParseLngLat(lngText, latText string) (Target, error) {
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(lngText), 64)
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	if lngErr != nil || latErr != nil || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return Target{}, fmt.Errorf("%w: %q, %q", ErrNotNumeric, lngText, latText)
	}
	if err := ValidateLngLat(lng, lat); err != nil {
		return Target{}, err
	}
	return At(lng, lat), nil
}

// FormatDegrees renders a degree value in its shortest exact form ("2.3522").
func FormatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
