package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/geo"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	hasToken bool
	initial  geo.Coordinate
}

func NewInfoHandler(dataDir string, dbOK, hasToken bool, initial geo.Coordinate) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, hasToken: hasToken, initial: initial}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string         `json:"name" doc:"Service name"`
	Version  string         `json:"version" doc:"Service version"`
	DataDir  string         `json:"data_dir" doc:"Data directory path; empty when the cache is in memory"`
	DB       bool           `json:"db" doc:"Whether the geocode cache database is available"`
	Token    bool           `json:"token" doc:"Whether a map access token is configured"`
	Initial  geo.Coordinate `json:"initial" doc:"Starting viewport of new sessions"`
	Tile     string         `json:"tile" doc:"Tile under the starting viewport, z/x/y" example:"12/1205/1540"`
	Features []string       `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	t := h.initial.Tile()
	features := []string{"sessions", "layers", "geocode"}
	if h.dbOK {
		features = append(features, "geocode-cache")
	}
	if h.hasToken {
		features = append(features, "map")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-map",
		Version:  Version,
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Token:    h.hasToken,
		Initial:  h.initial,
		Tile:     fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y),
		Features: features,
	}}, nil
}
