package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/geocode"
)

// CacheHandler exposes the geocode cache table.
type CacheHandler struct {
	store *geocode.SQLStore
}

// NewCacheHandler creates a cache handler. A nil store answers 503.
func NewCacheHandler(store *geocode.SQLStore) *CacheHandler {
	return &CacheHandler{store: store}
}

// RegisterRoutes registers cache routes with Huma.
func (h *CacheHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/geocode/cache", h.ListCache, huma.OperationTags("geocode"))
	huma.Delete(api, "/api/v1/geocode/cache", h.PurgeCache, huma.OperationTags("geocode"))
}

type CacheListInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum entries to return"`
}

// CacheOutput is the response for listing cached lookups.
type CacheOutput struct {
	Body struct {
		Entries []geocode.Entry `json:"entries" doc:"Cached lookups, most recent first"`
		Count   int             `json:"count" doc:"Number of entries returned"`
	}
}

// ListCache returns cached geocode lookups.
func (h *CacheHandler) ListCache(ctx context.Context, input *CacheListInput) (*CacheOutput, error) {
	if h.store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	entries, err := h.store.List(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list cache", err)
	}
	out := &CacheOutput{}
	out.Body.Entries = entries
	out.Body.Count = len(entries)
	return out, nil
}

// PurgeOutput is the response for purging the cache.
type PurgeOutput struct {
	Body struct {
		Deleted int64 `json:"deleted" doc:"Number of entries removed"`
	}
}

// PurgeCache deletes every cached lookup.
func (h *CacheHandler) PurgeCache(ctx context.Context, input *struct{}) (*PurgeOutput, error) {
	if h.store == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	n, err := h.store.Purge(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to purge cache", err)
	}
	out := &PurgeOutput{}
	out.Body.Deleted = n
	return out, nil
}
