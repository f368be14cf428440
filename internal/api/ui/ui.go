// Package ui serves the map page's Datastar endpoints: the per-session
// engine stream, the browser engine's reports, and the panel actions.
package ui

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/engine"
	"github.com/joeblew999/plat-map/internal/events"
	"github.com/joeblew999/plat-map/internal/humastar"
	"github.com/joeblew999/plat-map/internal/panel"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
)

// Base is the path prefix of every session UI route.
const Base = "/api/v1/ui/sessions"

// EventEngineCommand is the DOM event static/map.js listens for.
const EventEngineCommand = "engine-command"

// SessionPath returns the UI base path of a session.
func SessionPath(id string) string {
	return Base + "/" + id
}

// Handler holds the UI endpoints.
type Handler struct {
	humastar.Handler
	sessions *session.Manager
	log      zerolog.Logger
}

func NewHandler(sessions *session.Manager, renderer *templates.Renderer, log zerolog.Logger) *Handler {
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		log:      log.With().Str("component", "ui").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("ui")
	huma.Get(api, Base+"/{id}/stream", h.Stream, tags)
	huma.Post(api, Base+"/{id}/engine/loaded", h.EngineLoaded, tags)
	huma.Post(api, Base+"/{id}/engine/viewport", h.EngineViewport, tags)
	huma.Post(api, Base+"/{id}/search", h.Search, tags)
	huma.Post(api, Base+"/{id}/goto", h.GoTo, tags)
	huma.Post(api, Base+"/{id}/layers/{group}", h.ToggleLayer, tags)
}

// Inputs

type IDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type SessionSignalsInput struct {
	IDInput
	humastar.SignalsInput
}

type LoadedInput struct {
	IDInput
	Body struct {
		Handle uint64 `json:"handle" doc:"Engine handle that finished loading"`
	}
}

type ViewportInput struct {
	IDInput
	Body struct {
		Handle uint64  `json:"handle" doc:"Engine handle reporting the move"`
		Lng    float64 `json:"lng" doc:"Centre longitude"`
		Lat    float64 `json:"lat" doc:"Centre latitude"`
		Zoom   float64 `json:"zoom" doc:"Zoom level"`
	}
}

type ToggleInput struct {
	IDInput
	Group   string `path:"group" doc:"Layer group ID" example:"highways"`
	Visible bool   `query:"visible" doc:"New checkbox state"`
}

// Stream mounts the session's map and forwards engine commands, displayed
// coordinates and layer changes until the page goes away. The session is
// closed when the stream ends.
func (h *Handler) Stream(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if s.Bridge == nil {
		return nil, huma.Error409Conflict("session has no browser engine")
	}
	if err := s.Attach(); err != nil {
		return nil, huma.Error409Conflict(err.Error())
	}

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		log := h.log.With().Str("session", s.ID).Logger()
		defer h.closeSession(s.ID, log)

		sub := s.Events.Subscribe()
		defer s.Events.Unsubscribe(sub)

		if err := s.Mount(ctx); err != nil {
			log.Error().Err(err).Msg("mount failed")
			sse.Message("layererror", panel.MsgMapNotReady)
			return
		}
		log.Debug().Msg("engine stream attached")
		h.patchLayers(sse, s, s.Controls.Checkboxes())

		cmds := s.Bridge.Commands()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd, ok := <-cmds:
				if !ok {
					return
				}
				if err := sse.Event(EventEngineCommand, cmd); err != nil {
					log.Debug().Err(err).Msg("engine stream write failed")
					return
				}
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch ev.Kind {
				case events.Viewport:
					sse.Signals(templates.DisplayCoord(ev.Coord))
				case events.Layers:
					h.patchLayers(sse, s, s.Controls.Checkboxes())
				case events.Closed:
					return
				}
			}
		}
	}), nil
}

// EngineLoaded receives the browser map's load event.
func (h *Handler) EngineLoaded(ctx context.Context, input *LoadedInput) (*struct{}, error) {
	s, err := h.browserSession(input.ID)
	if err != nil {
		return nil, err
	}
	if !s.Bridge.ReportLoaded(input.Body.Handle) {
		return nil, huma.Error404NotFound("unknown map handle")
	}
	return nil, nil
}

// EngineViewport receives the browser map's move events.
func (h *Handler) EngineViewport(ctx context.Context, input *ViewportInput) (*struct{}, error) {
	s, err := h.browserSession(input.ID)
	if err != nil {
		return nil, err
	}
	vp := engine.Viewport{Center: orb.Point{input.Body.Lng, input.Body.Lat}, Zoom: input.Body.Zoom}
	if !s.Bridge.ReportViewport(input.Body.Handle, vp) {
		return nil, huma.Error404NotFound("unknown map handle")
	}
	return nil, nil
}

// Search geocodes the query signal and recentres the map on the result.
func (h *Handler) Search(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	query := signals.String("query")

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		sse.Signals(map[string]any{"searching": true, "searcherror": ""})
		out := s.Search.Search(ctx, query)
		h.log.Debug().Str("session", s.ID).Str("query", query).Stringer("outcome", out).Msg("search")
		switch out {
		case panel.Busy, panel.Discarded:
			return
		}
		st := s.Search.State()
		sse.Signals(map[string]any{
			"searching":   false,
			"searcherror": st.Message,
			"manuallng":   st.Lng,
			"manuallat":   st.Lat,
		})
	}), nil
}

// GoTo recentres the map on the manual coordinate fields.
func (h *Handler) GoTo(ctx context.Context, input *SessionSignalsInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	lng, lat := signals.String("manuallng"), signals.String("manuallat")

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		out := s.Search.GoTo(lng, lat)
		h.log.Debug().Str("session", s.ID).Stringer("outcome", out).Msg("goto")
		sse.Message("searcherror", s.Search.State().Message)
	}), nil
}

// ToggleLayer applies a checkbox change and re-renders the layer list from
// the controller's state.
func (h *Handler) ToggleLayer(ctx context.Context, input *ToggleInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	boxes, err := s.Controls.Toggle(input.Group, input.Visible)
	if err != nil {
		h.log.Debug().Err(err).Str("session", s.ID).Str("group", input.Group).Msg("layer toggle")
	}

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		h.patchLayers(sse, s, boxes)
		sse.Message("layererror", s.Controls.Message())
	}), nil
}

func (h *Handler) patchLayers(sse humastar.SSE, s *session.Session, boxes []panel.Checkbox) {
	html, err := h.Render("layer-list", map[string]any{
		"Session": SessionPath(s.ID),
		"Layers":  boxes,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("render layer list")
		return
	}
	sse.Patch(html, "#layer-list")
}

func (h *Handler) session(id string) (*session.Session, error) {
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return s, nil
}

func (h *Handler) browserSession(id string) (*session.Session, error) {
	s, err := h.session(id)
	if err != nil {
		return nil, err
	}
	if s.Bridge == nil {
		return nil, huma.Error409Conflict("session has no browser engine")
	}
	return s, nil
}

func (h *Handler) closeSession(id string, log zerolog.Logger) {
	err := h.sessions.Close(id)
	switch {
	case errors.Is(err, session.ErrNotFound):
	case err != nil:
		log.Warn().Err(err).Msg("close session")
	default:
		log.Debug().Msg("engine stream detached")
	}
}
