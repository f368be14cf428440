package panel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/layers"
	"github.com/joeblew999/plat-map/internal/mapsession"
)

type stubLayers struct {
	groups []layers.Group
	err    error
	calls  int
}

func (s *stubLayers) SetLayerVisibility(id string, visible bool) error {
	s.calls++
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups[i].Visible = visible
			return s.err
		}
	}
	return fmt.Errorf("layer group %q: %w", id, mapsession.ErrUnknownLayerGroup)
}

func (s *stubLayers) Layers() []layers.Group {
	return layers.Clone(s.groups)
}

func TestCheckboxesFollowRegistryOrder(t *testing.T) {
	p := NewControlsPanel(&stubLayers{groups: layers.Defaults()}, zerolog.Nop())
	boxes := p.Checkboxes()
	want := []string{"highways", "primary", "secondary", "streets"}
	if len(boxes) != len(want) {
		t.Fatalf("boxes = %+v", boxes)
	}
	for i, id := range want {
		if boxes[i].ID != id || !boxes[i].Checked {
			t.Fatalf("box %d = %+v", i, boxes[i])
		}
	}
	if boxes[3].Label != "Local Streets" {
		t.Fatalf("label = %q", boxes[3].Label)
	}
}

func TestToggleRereadsState(t *testing.T) {
	ctl := &stubLayers{groups: layers.Defaults()}
	p := NewControlsPanel(ctl, zerolog.Nop())

	boxes, err := p.Toggle("primary", false)
	if err != nil {
		t.Fatal(err)
	}
	if boxes[1].Checked {
		t.Fatal("primary still checked")
	}
	if p.Message() != "" {
		t.Fatalf("message = %q", p.Message())
	}
}

func TestToggleMessages(t *testing.T) {
	ctl := &stubLayers{groups: layers.Defaults()}
	p := NewControlsPanel(ctl, zerolog.Nop())

	if _, err := p.Toggle("ferries", true); !errors.Is(err, mapsession.ErrUnknownLayerGroup) {
		t.Fatalf("err = %v", err)
	}
	if p.Message() != MsgUnknownLayer {
		t.Fatalf("message = %q", p.Message())
	}

	ctl.err = errors.New("layer \"road-minor\": missing")
	boxes, err := p.Toggle("streets", false)
	if err == nil || p.Message() != MsgLayerFailed {
		t.Fatalf("err = %v, message = %q", err, p.Message())
	}
	if boxes[3].Checked {
		t.Fatal("partial failure must keep the requested state")
	}

	ctl.err = fmt.Errorf("x: %w", mapsession.ErrNotMounted)
	p.Toggle("streets", true)
	if p.Message() != MsgMapNotReady {
		t.Fatalf("message = %q", p.Message())
	}
}
