// Package templates renders the page shell and the HTML fragments patched
// into it over Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"
)

//go:embed pages/*.html fragments/*.html
var embedded embed.FS

//go:embed static
var staticFiles embed.FS

// Static returns the embedded static assets rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// pageNames are the files under pages/ other than the layout.
var pageNames = []string{"home", "map"}

// Renderer holds the fragment set and one template per page.
type Renderer struct {
	mu        sync.RWMutex
	fragments *template.Template
	pages     map[string]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	r := &Renderer{}
	if err := r.load(embedded); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromDir parses templates from dir on disk (a directory holding pages/
// and fragments/), for editing without rebuilding.
func NewFromDir(dir string) (*Renderer, error) {
	r := &Renderer{}
	if err := r.load(os.DirFS(dir)); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses templates from dir.
func (r *Renderer) Reload(dir string) error {
	return r.load(os.DirFS(dir))
}

func (r *Renderer) load(fsys fs.FS) error {
	fragments, err := template.New("").Funcs(funcMap).ParseFS(fsys, "fragments/*.html")
	if err != nil {
		return fmt.Errorf("parse fragments: %w", err)
	}
	base, err := fragments.Clone()
	if err != nil {
		return err
	}
	if _, err := base.ParseFS(fsys, "pages/layout.html"); err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := t.ParseFS(fsys, path.Join("pages", name+".html")); err != nil {
			return fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = t
	}

	r.mu.Lock()
	r.fragments = fragments
	r.pages = pages
	r.mu.Unlock()
	return nil
}

// Render renders a named fragment to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named fragment to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fragments.ExecuteTemplate(buf, name, data)
}

// MustRender renders a fragment and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Page renders a full page through the layout. Output is buffered so a
// template error never leaves a half-written page.
func (r *Renderer) Page(w io.Writer, name string, data any) error {
	r.mu.RLock()
	t, ok := r.pages[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
