// Package layers defines the toggleable road-category groups shown in the
// map controls panel. Each group maps one UI toggle onto one or more
// renderer layer ids that must change visibility together.
package layers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Group is one UI toggle. Only Visible changes at runtime.
type Group struct {
	ID             string   `json:"id" yaml:"id" doc:"Stable group key" example:"highways"`
	Label          string   `json:"label" yaml:"label" doc:"Display label" example:"Highways"`
	TargetLayerIDs []string `json:"targetLayerIds" yaml:"targets" minItems:"1" doc:"Renderer layer ids toggled together"`
	Visible        bool     `json:"visible" yaml:"visible" doc:"Whether the group is shown"`
}

// Defaults returns the four road groups for the Mapbox streets-v12 style, all visible.
func Defaults() []Group {
	return []Group{
		{ID: "highways", Label: "Highways", TargetLayerIDs: []string{"road-motorway-trunk", "road-motorway-trunk-case"}, Visible: true},
		{ID: "primary", Label: "Primary Roads", TargetLayerIDs: []string{"road-primary", "road-primary-case"}, Visible: true},
		{ID: "secondary", Label: "Secondary Roads", TargetLayerIDs: []string{"road-secondary-tertiary", "road-secondary-tertiary-case"}, Visible: true},
		{ID: "streets", Label: "Local Streets", TargetLayerIDs: []string{"road-street", "road-minor"}, Visible: true},
	}
}

// Registry is the fixed, ordered group definition established at startup.
// It is read-only; sessions take copies via Groups.
type Registry struct {
	groups []Group
	index  map[string]int
}

// NewRegistry validates groups and builds a registry over a private copy.
func NewRegistry(groups []Group) (*Registry, error) {
	if len(groups) == 0 {
		return nil, errors.New("layer registry is empty")
	}
	r := &Registry{
		groups: Clone(groups),
		index:  make(map[string]int, len(groups)),
	}
	for i, g := range r.groups {
		if g.ID == "" {
			g.ID = generateID(g.Label)
			r.groups[i].ID = g.ID
		}
		if g.ID == "" {
			return nil, fmt.Errorf("layer group %d: id or label is required", i)
		}
		if strings.TrimSpace(g.Label) == "" {
			return nil, fmt.Errorf("layer group %q: label is required", g.ID)
		}
		if len(g.TargetLayerIDs) == 0 {
			return nil, fmt.Errorf("layer group %q: at least one target layer is required", g.ID)
		}
		for _, id := range g.TargetLayerIDs {
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("layer group %q: empty target layer id", g.ID)
			}
		}
		if _, exists := r.index[g.ID]; exists {
			return nil, fmt.Errorf("layer group with ID %q already exists", g.ID)
		}
		r.index[g.ID] = i
	}
	return r, nil
}

// MustDefault returns the registry of Defaults.
func MustDefault() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

// Groups returns a copy of the groups in registry order.
func (r *Registry) Groups() []Group {
	return Clone(r.groups)
}

// Get returns a group definition by ID.
func (r *Registry) Get(id string) (Group, bool) {
	i, ok := r.index[id]
	if !ok {
		return Group{}, false
	}
	return Clone(r.groups[i : i+1])[0], true
}

// Len returns the number of groups.
func (r *Registry) Len() int {
	return len(r.groups)
}

// Clone deep-copies a group slice so target id slices are never shared.
func Clone(groups []Group) []Group {
	if groups == nil {
		return nil
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		g.TargetLayerIDs = append([]string(nil), g.TargetLayerIDs...)
		out[i] = g
	}
	return out
}

type fileFormat struct {
	Groups []Group `yaml:"groups"`
}

// Load reads a YAML registry file. An empty path yields the defaults.
//
//	groups:
//	  - id: highways
//	    label: Highways
//	    targets: [road-motorway-trunk]
//	    visible: true
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(Defaults())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layers file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse layers file %s: %w", path, err)
	}
	r, err := NewRegistry(f.Groups)
	if err != nil {
		return nil, fmt.Errorf("layers file %s: %w", path, err)
	}
	return r, nil
}

// MarshalYAML renders the registry in the layers file format.
func (r *Registry) MarshalYAML() (any, error) {
	return fileFormat{Groups: r.groups}, nil
}

// generateID creates a URL-safe ID from a label.
func generateID(label string) string {
	id := strings.ToLower(strings.TrimSpace(label))
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
