package panel

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/layers"
	"github.com/joeblew999/plat-map/internal/mapsession"
)

// Messages shown under the controls panel.
const (
	MsgUnknownLayer = "Unknown layer group"
	MsgLayerFailed  = "Some map layers could not be updated"
	MsgMapNotReady  = "Map is not loaded"
)

// LayerController is the part of the map session the controls panel drives.
type LayerController interface {
	SetLayerVisibility(groupID string, visible bool) error
	Layers() []layers.Group
}

// Checkbox is one rendered layer toggle.
type Checkbox struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// ControlsPanel renders the controller's acknowledged layer state.
type ControlsPanel struct {
	ctl LayerController
	log zerolog.Logger

	mu      sync.Mutex
	message string
}

func NewControlsPanel(ctl LayerController, log zerolog.Logger) *ControlsPanel {
	return &ControlsPanel{ctl: ctl, log: log}
}

// Checkboxes returns one checkbox per group in registry order.
func (p *ControlsPanel) Checkboxes() []Checkbox {
	groups := p.ctl.Layers()
	out := make([]Checkbox, len(groups))
	for i, g := range groups {
		out[i] = Checkbox{ID: g.ID, Label: g.Label, Checked: g.Visible}
	}
	return out
}

// Toggle forwards a checkbox change and returns the re-read state.
func (p *ControlsPanel) Toggle(groupID string, checked bool) ([]Checkbox, error) {
	err := p.ctl.SetLayerVisibility(groupID, checked)

	msg := ""
	switch {
	case err == nil:
	case errors.Is(err, mapsession.ErrUnknownLayerGroup):
		msg = MsgUnknownLayer
	case errors.Is(err, mapsession.ErrNotMounted):
		msg = MsgMapNotReady
	default:
		p.log.Warn().Err(err).Str("group", groupID).Bool("visible", checked).Msg("layer toggle failed")
		msg = MsgLayerFailed
	}

	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()

	return p.Checkboxes(), err
}

// Message returns the last toggle's error message, or "".
func (p *ControlsPanel) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}
