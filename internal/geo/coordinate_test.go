package geo

import (
	"errors"
	"testing"
)

func TestRounded(t *testing.T) {
	c := Coordinate{Lng: 2.35222189, Lat: 48.85661402, Zoom: 12.3456}
	got := c.Rounded()
	want := Coordinate{Lng: 2.3522, Lat: 48.8566, Zoom: 12.35}
	if got != want {
		t.Fatalf("Rounded() = %+v, want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	if err := NewYork.Validate(); err != nil {
		t.Fatalf("NewYork.Validate() = %v", err)
	}
	bad := []Coordinate{
		{Lng: 180.0001, Lat: 0},
		{Lng: -181, Lat: 0},
		{Lng: 0, Lat: 90.5},
		{Lng: 0, Lat: -91},
		{Lng: 0, Lat: 0, Zoom: -1},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Validate(%+v) = %v, want ErrOutOfRange", c, err)
		}
	}
}

func TestParseLngLat(t *testing.T) {
	target, err := ParseLngLat(" 2.3522 ", "48.8566")
	if err != nil {
		t.Fatalf("ParseLngLat: %v", err)
	}
	if target.Lng != 2.3522 || target.Lat != 48.8566 || target.Zoom != nil {
		t.Fatalf("ParseLngLat = %+v", target)
	}

	if _, err := ParseLngLat("abc", "40"); !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("non-numeric: err = %v, want ErrNotNumeric", err)
	}
	if _, err := ParseLngLat("200", "40"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("out of range: err = %v, want ErrOutOfRange", err)
	}
	if _, err := ParseLngLat("200", "x"); !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("both bad: err = %v, want ErrNotNumeric first", err)
	}
	if _, err := ParseLngLat("10", "-90.01"); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("lat out of range should be an ErrInvalidCoordinate, got %v", err)
	}
}

func TestTargetResolve(t *testing.T) {
	c := At(1, 2).Resolve(7.5)
	if c.Zoom != 7.5 {
		t.Fatalf("absent zoom: got %v, want 7.5", c.Zoom)
	}
	c = At(1, 2).WithZoom(12).Resolve(7.5)
	if c.Zoom != 12 {
		t.Fatalf("explicit zoom: got %v, want 12", c.Zoom)
	}
}

func TestTile(t *testing.T) {
	tile := NewYork.Tile()
	if tile.Z != 12 || tile.X != 1205 || tile.Y != 1540 {
		t.Fatalf("Tile() = %v, want 12/1205/1540", tile)
	}
}

func TestFormatDegrees(t *testing.T) {
	if got := FormatDegrees(2.3522); got != "2.3522" {
		t.Fatalf("FormatDegrees = %q", got)
	}
	if got := FormatDegrees(-74); got != "-74" {
		t.Fatalf("FormatDegrees = %q", got)
	}
}
