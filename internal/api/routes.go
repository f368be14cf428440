// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/geocode"
	"github.com/joeblew999/plat-map/internal/humastar"
	"github.com/joeblew999/plat-map/internal/layers"
	"github.com/joeblew999/plat-map/internal/mapsession"
	"github.com/joeblew999/plat-map/internal/session"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Sessions *session.Manager
	Registry *layers.Registry
	Geocoder geocode.Geocoder
}

// RegisterRoutes registers the REST operations.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// SessionBody is a session snapshot with its state-dependent actions.
type SessionBody struct {
	session.Info
}

var sessionActions = []humastar.ActionDef{
	{Rel: "recenter", Pattern: "/api/v1/sessions/%s/recenter", Method: "POST", Title: "Fly to a coordinate"},
	{Rel: "close", Pattern: "/api/v1/sessions/%s", Method: "DELETE", Title: "Close the session"},
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, sessionActions)
}

type SessionOutput struct {
	Body SessionBody
}

type SessionsOutput struct {
	Body []session.Info
}

type RecenterInput struct {
	SessionIDInput
	Body geo.Target
}

type LayerInput struct {
	SessionIDInput
	Group string `path:"group" doc:"Layer group ID" example:"highways"`
	Body  struct {
		Visible bool `json:"visible" doc:"Show or hide every layer of the group"`
	}
}

type GeocodeInput struct {
	Query string `query:"q" required:"true" minLength:"1" doc:"Free-text place name" example:"Paris"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers the layer registry route.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
}

// RegisterSessions registers headless session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        "POST",
		Path:          "/api/v1/sessions",
		Summary:       "Create a headless map session",
		Tags:          []string{"sessions"},
		DefaultStatus: 201,
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/recenter", h.Recenter, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{group}", h.PutLayer, huma.OperationTags("sessions"))
}

// RegisterGeocode registers the geocoding proxy.
func (h *APIHandler) RegisterGeocode(api huma.API) {
	huma.Get(api, "/api/v1/geocode", h.Geocode, huma.OperationTags("geocode"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []layers.Group }, error) {
	return &struct{ Body []layers.Group }{Body: h.svc.Registry.Groups()}, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	s, err := h.svc.Sessions.Create(ctx, true)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to create session", err)
	}
	return &SessionOutput{Body: SessionBody{s.Info()}}, nil
}

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*SessionsOutput, error) {
	list := h.svc.Sessions.List()
	out := make([]session.Info, len(list))
	for i, s := range list {
		out[i] = s.Info()
	}
	return &SessionsOutput{Body: out}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: SessionBody{s.Info()}}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := h.svc.Sessions.Close(input.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, huma.Error404NotFound("session not found")
		}
		return nil, huma.Error500InternalServerError("Failed to close session", err)
	}
	return nil, nil
}

func (h *APIHandler) Recenter(ctx context.Context, input *RecenterInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if s.Controller.State() != mapsession.Ready {
		return nil, huma.Error409Conflict("map is not loaded yet")
	}
	if err := s.Controller.Recenter(input.Body); err != nil {
		return nil, mapError(err)
	}
	return &SessionOutput{Body: SessionBody{s.Info()}}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *LayerInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Controls.Toggle(input.Group, input.Body.Visible); err != nil {
		return nil, mapError(err)
	}
	return &SessionOutput{Body: SessionBody{s.Info()}}, nil
}

func (h *APIHandler) Geocode(ctx context.Context, input *GeocodeInput) (*struct{ Body geocode.Place }, error) {
	place, err := h.svc.Geocoder.Lookup(ctx, input.Query)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		return nil, huma.Error404NotFound("no results found for that location")
	case err != nil:
		return nil, huma.Error502BadGateway("geocoding failed")
	}
	return &struct{ Body geocode.Place }{Body: place}, nil
}

func (h *APIHandler) session(id string) (*session.Session, error) {
	s, err := h.svc.Sessions.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return s, nil
}

// mapError converts controller errors to HTTP errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, mapsession.ErrUnknownLayerGroup):
		return huma.Error404NotFound("unknown layer group")
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, mapsession.ErrAlreadyMounted):
		return huma.Error409Conflict("map session already mounted")
	case errors.Is(err, mapsession.ErrNotMounted):
		return huma.Error409Conflict("map session not mounted")
	}
	return huma.Error500InternalServerError("map update failed", err)
}
