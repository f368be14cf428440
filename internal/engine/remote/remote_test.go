package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-map/internal/engine"
)

func TestCommandsInOrder(t *testing.T) {
	b := NewBridge(8)
	h, err := b.Create(context.Background(), engine.Options{Container: "map", Style: engine.DefaultStyle, Center: orb.Point{-74.006, 40.7128}, Zoom: 12})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.SetLayerVisibility("road-street", engine.None); err != nil {
		t.Fatal(err)
	}
	if err := h.FlyTo(orb.Point{2.3522, 48.8566}, 12, engine.FlyOptions{Duration: 2 * time.Second, Essential: true}); err != nil {
		t.Fatal(err)
	}
	if err := h.Destroy(); err != nil {
		t.Fatal(err)
	}

	want := []string{OpCreate, OpVisibility, OpFlyTo, OpDestroy}
	for i, op := range want {
		cmd := <-b.Commands()
		if cmd.Op != op {
			t.Fatalf("command %d = %q, want %q", i, cmd.Op, op)
		}
		switch cmd.Op {
		case OpCreate:
			if cmd.Container != "map" || cmd.Center[0] != -74.006 || *cmd.Zoom != 12 {
				t.Fatalf("create = %+v", cmd)
			}
		case OpVisibility:
			if cmd.LayerID != "road-street" || cmd.Visibility != "none" {
				t.Fatalf("visibility = %+v", cmd)
			}
		case OpFlyTo:
			if cmd.DurationMS != 2000 || !cmd.Essential {
				t.Fatalf("flyTo = %+v", cmd)
			}
		}
	}
	if err := h.FlyTo(orb.Point{}, 1, engine.FlyOptions{}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("FlyTo after destroy = %v", err)
	}
}

func TestReports(t *testing.T) {
	b := NewBridge(8)
	h, _ := b.Create(context.Background(), engine.Options{})

	views := make(chan engine.Viewport, 1)
	h.OnViewportChange(func(vp engine.Viewport) { views <- vp })
	if !b.ReportViewport(1, engine.Viewport{Center: orb.Point{1, 2}, Zoom: 3}) {
		t.Fatal("viewport report for current handle rejected")
	}
	if vp := <-views; vp.Zoom != 3 {
		t.Fatalf("viewport = %+v", vp)
	}
	if b.ReportViewport(99, engine.Viewport{}) {
		t.Fatal("report for unknown handle accepted")
	}

	loads := make(chan struct{}, 2)
	h.OnLoadComplete(func() { loads <- struct{}{} })
	b.ReportLoaded(1)
	b.ReportLoaded(1)
	<-loads
	select {
	case <-loads:
		t.Fatal("load-complete delivered twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLoadBeforeRegistration(t *testing.T) {
	b := NewBridge(8)
	h, _ := b.Create(context.Background(), engine.Options{})
	b.ReportLoaded(0)

	loaded := make(chan struct{})
	h.OnLoadComplete(func() { close(loaded) })
	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("early load was lost")
	}
}

func TestBackpressureAndClose(t *testing.T) {
	b := NewBridge(1)
	h, err := b.Create(context.Background(), engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.SetLayerVisibility("x", engine.None); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("err = %v, want ErrBackpressure", err)
	}
	b.Close()
	if err := h.Destroy(); err != nil {
		t.Fatalf("Destroy after close = %v", err)
	}
	if _, err := b.Create(context.Background(), engine.Options{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Create after close = %v", err)
	}
}
