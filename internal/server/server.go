package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-map/internal/api"
	"github.com/joeblew999/plat-map/internal/api/ui"
	"github.com/joeblew999/plat-map/internal/db"
	"github.com/joeblew999/plat-map/internal/geo"
	"github.com/joeblew999/plat-map/internal/geocode"
	"github.com/joeblew999/plat-map/internal/humastar"
	"github.com/joeblew999/plat-map/internal/layers"
	"github.com/joeblew999/plat-map/internal/metrics"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host        string
	Port        string
	DataDir     string // DuckDB location; empty keeps the cache in memory
	Token       string // map and geocoding access token
	Style       string
	GeocodeURL  string
	LayersFile  string // YAML layer groups; empty uses the built-in road groups
	Cache       bool   // persist geocode results in DuckDB
	FlyDuration time.Duration
	IdleTTL     time.Duration
	WebDir      string // templates on disk instead of the embedded copy
	Logger      zerolog.Logger
}

// Server is the map HTTP server.
type Server struct {
	config   Config
	log      zerolog.Logger
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	links    *humastar.Links
	db       *sql.DB
	metrics  *metrics.Metrics
	registry *layers.Registry
	geocoder geocode.Geocoder
	cache    *geocode.SQLStore
	sessions *session.Manager
	renderer *templates.Renderer
}

// New creates a new map server.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger

	registry := layers.MustDefault()
	if cfg.LayersFile != "" {
		r, err := layers.Load(cfg.LayersFile)
		if err != nil {
			return nil, err
		}
		registry = r
	}

	var renderer *templates.Renderer
	var err error
	if cfg.WebDir != "" {
		renderer, err = templates.NewFromDir(cfg.WebDir)
		if err == nil {
			log.Info().Str("dir", cfg.WebDir).Msg("loaded templates from disk")
		}
	} else {
		renderer, err = templates.New()
	}
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		log:      log,
		mux:      http.NewServeMux(),
		links:    &humastar.Links{},
		metrics:  metrics.New(),
		registry: registry,
		renderer: renderer,
	}

	if cfg.Cache {
		conn, err := db.Open(context.Background(), db.Config{DataDir: cfg.DataDir})
		if err != nil {
			log.Warn().Err(err).Msg("geocode cache disabled")
		} else {
			s.db = conn
			s.cache = geocode.NewSQLStore(conn)
		}
	}

	client := geocode.NewClient(geocode.Options{
		BaseURL: cfg.GeocodeURL,
		Token:   cfg.Token,
		Logger:  log.With().Str("component", "geocode").Logger(),
	})
	var store geocode.Store
	if s.cache != nil {
		store = s.cache
	}
	s.geocoder = geocode.NewCached(client, store, s.metrics, log)

	s.sessions = session.NewManager(session.Options{
		Registry:    registry,
		Geocoder:    s.geocoder,
		Initial:     geo.NewYork,
		Style:       cfg.Style,
		FlyDuration: cfg.FlyDuration,
		IdleTTL:     cfg.IdleTTL,
		Metrics:     s.metrics,
		Logger:      log,
	})

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-map API", api.Version)
	humaConfig.Info.Description = "Map explorer API: headless map sessions, layer groups and geocoding."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	s.handler = chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.accessLog,
	).Handler(s.mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Registry returns the layer group registry in use.
func (s *Server) Registry() *layers.Registry {
	return s.registry
}

// Geocoder returns the cached geocoder.
func (s *Server) Geocoder() geocode.Geocoder {
	return s.geocoder
}

// Run serves on addr until ctx is done, then drains sessions and shuts the
// listener down.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reaped := make(chan struct{})
	go func() {
		s.sessions.Run(ctx)
		close(reaped)
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", addr).Msg("listening")

	select {
	case err := <-errc:
		cancel()
		<-reaped
		return err
	case <-ctx.Done():
	}

	// Sessions close first so their streams end and Shutdown can drain.
	<-reaped
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close closes server resources.
func (s *Server) Close() error {
	s.sessions.CloseAll()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Sessions: s.sessions,
		Registry: s.registry,
		Geocoder: s.geocoder,
	})
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.config.Token != "", geo.NewYork).RegisterRoutes(s.humaAPI)
	api.NewCacheHandler(s.cache).RegisterRoutes(s.humaAPI)

	// Datastar SSE routes for the map page
	ui.NewHandler(s.sessions, s.renderer, s.log).RegisterRoutes(s.humaAPI)

	s.links.Build(s.humaAPI, "/api/v1/info", "/api/v1/geocode")

	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(templates.Static())))
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// Page routes
	s.mux.HandleFunc("GET /map", s.handleMap)
	s.mux.HandleFunc("GET /{$}", s.handleHome)
}
