package templates

import (
	"encoding/json"

	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/panel"
)

// Brand is the site name shown in the header and footer.
const Brand = "MapExplorer"

// NavItem is one sidebar link.
type NavItem struct {
	Href  string
	Label string
}

// Nav is the sidebar navigation.
var Nav = []NavItem{
	{Href: "/", Label: "Home"},
	{Href: "/map", Label: "Map"},
	{Href: "/docs", Label: "API"},
}

// About is the information card under the map.
type About struct {
	Title       string
	Description string
}

// DefaultAbout describes the default New York City view.
var DefaultAbout = About{
	Title:       "About This Map",
	Description: "This interactive map displays the streets and geography around New York City. You can pan, zoom, and explore the area. Use the controls to customize which road types are displayed and the search bar to find specific locations.",
}

// Page is the data every page renders with.
type Page struct {
	Title  string
	Active string // href of the current nav item
	Year   int
	Nav    []NavItem
	Brand  string

	// Map page only.
	HasToken bool
	Token    string
	Session  string // UI base path for the session, e.g. /api/v1/ui/sessions/{id}
	Signals  string // data-signals JSON
	Coord    Coord
	Layers   []panel.Checkbox
	About    About
}

// Coord is a coordinate formatted for display.
type Coord struct {
	Lng  string `json:"lng"`
	Lat  string `json:"lat"`
	Zoom string `json:"zoom"`
}

// DisplayCoord formats c at display precision.
func DisplayCoord(c geo.Coordinate) Coord {
	r := c.Rounded()
	return Coord{
		Lng:  geo.FormatDegrees(r.Lng),
		Lat:  geo.FormatDegrees(r.Lat),
		Zoom: geo.FormatDegrees(r.Zoom),
	}
}

// MapSignals is the initial Datastar signal set of the map page. Names are
// lowercase to match data-bind.
type MapSignals struct {
	Coord
	Query       string `json:"query"`
	ManualLng   string `json:"manuallng"`
	ManualLat   string `json:"manuallat"`
	SearchError string `json:"searcherror"`
	LayerError  string `json:"layererror"`
	Searching   bool   `json:"searching"`
}

// NewMapSignals seeds the signals from the displayed coordinate and the
// search panel state.
func NewMapSignals(c geo.Coordinate, st panel.SearchState) MapSignals {
	return MapSignals{
		Coord:       DisplayCoord(c),
		ManualLng:   st.Lng,
		ManualLat:   st.Lat,
		SearchError: st.Message,
		Searching:   st.Searching,
	}
}

// JSON returns the signals for a data-signals attribute.
func (s MapSignals) JSON() string {
	b, _ := json.Marshal(s)
	return string(b)
}
