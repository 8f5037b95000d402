// Package api provides the HTTP API server and handlers for Shelfmark.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shelfmark/shelfmark-server/internal/ratelimit"
	"github.com/shelfmark/shelfmark-server/internal/search"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// Config holds the server settings handlers need.
type Config struct {
	Version        string
	PublicURL      string // prefix for imageUrl
	CORSOrigins    []string
	MaxUploadBytes int64
	TokenFormat    string // shown in the OpenAPI security scheme
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           *store.Store
	searchIndex     *search.SearchIndex
	services        *Services
	storage         *StorageServices
	router          *chi.Mux
	api             huma.API
	authRateLimiter *ratelimit.KeyedRateLimiter
	config          Config
	logger          *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	st *store.Store,
	searchIndex *search.SearchIndex,
	services *Services,
	storage *StorageServices,
	authRateLimiter *ratelimit.KeyedRateLimiter,
	cfg Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = MaxUploadSize
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		store:           st,
		searchIndex:     searchIndex,
		services:        services,
		storage:         storage,
		router:          chi.NewRouter(),
		authRateLimiter: authRateLimiter,
		config:          cfg,
		logger:          logger,
	}

	s.setupMiddleware()
	s.setupAPI()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for OpenAPI generation.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodPatch, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Origin", "X-Requested-With", "Content", "Accept", "Content-Type", "Authorization",
		},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}))
}

func (s *Server) setupAPI() {
	version := s.config.Version
	if version == "" {
		version = "dev"
	}

	humaConfig := huma.DefaultConfig("Shelfmark API", version)
	// Plain JSON bodies, without $schema links.
	humaConfig.CreateHooks = nil
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: bearerFormat(s.config.TokenFormat),
		},
	}

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler(s.logger)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerUploadRoutes()
}

func bearerFormat(tokenFormat string) string {
	if tokenFormat == "jwt" {
		return "JWT"
	}
	return "PASETO"
}
