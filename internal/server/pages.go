package server

import (
	"net/http"
	"time"

	"github.com/joeblew999/plat-map/internal/api/ui"
	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/templates"
)

func (s *Server) page(title, active string) templates.Page {
	return templates.Page{
		Title:  title,
		Active: active,
		Year:   time.Now().Year(),
		Nav:    templates.Nav,
		Brand:  templates.Brand,
		About:  templates.DefaultAbout,
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, "home", s.page("Home", "/"))
}

// handleMap creates a browser session for this page load. Without a token
// the page still renders, with a placeholder instead of the map.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context(), false)
	if err != nil {
		s.log.Error().Err(err).Msg("create session")
		http.Error(w, "Failed to create map session", http.StatusInternalServerError)
		return
	}

	p := s.page("Map", "/map")
	p.HasToken = s.config.Token != ""
	p.Token = s.config.Token
	p.Session = ui.SessionPath(sess.ID)
	p.Coord = templates.DisplayCoord(geo.NewYork)
	p.Signals = templates.NewMapSignals(geo.NewYork, sess.Search.State()).JSON()
	p.Layers = sess.Controls.Checkboxes()
	s.render(w, "map", p)
}

func (s *Server) render(w http.ResponseWriter, name string, p templates.Page) {
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Page(w, name, p); err != nil {
		s.log.Error().Err(err).Str("page", name).Msg("render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
