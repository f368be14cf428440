package events

import "testing"

func TestFanOut(t *testing.T) {
	b := NewBus(4)
	a, c := b.Subscribe(), b.Subscribe()

	b.Publish(Event{Kind: Layers, Session: "s1"})
	for _, ch := range []chan Event{a, c} {
		if ev := <-ch; ev.Kind != Layers || ev.Session != "s1" {
			t.Fatalf("event = %+v", ev)
		}
	}

	b.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel not closed")
	}
	b.Unsubscribe(a)
	if b.Len() != 1 {
		t.Fatalf("Len = %d", b.Len())
	}
}

func TestSlowSubscriberSkipped(t *testing.T) {
	b := NewBus(1)
	ch := b.Subscribe()
	b.Publish(Event{Kind: Viewport})
	b.Publish(Event{Kind: Layers})

	if ev := <-ch; ev.Kind != Viewport {
		t.Fatalf("first event = %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("overflow event delivered: %+v", ev)
	default:
	}
}
