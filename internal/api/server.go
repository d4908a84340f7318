// Package api exposes the vault over HTTP: item lifecycle, the upload
// pipeline, download URLs, sharing, and the audit query surface.
package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/audit"
	"github.com/org/docvault/internal/auth"
	"github.com/org/docvault/internal/download"
	"github.com/org/docvault/internal/item"
	"github.com/org/docvault/internal/provider"
	"github.com/org/docvault/internal/quota"
	"github.com/org/docvault/internal/share"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/internal/upload"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr    string
	TLSCertFile   string
	TLSKeyFile    string
	ScannerSecret string
	RequireScan   bool
	// TrustProxy enables X-Forwarded-For for client addressing. Leave off
	// unless a trusted reverse proxy fronts the server.
	TrustProxy  bool
	QuotaLimits quota.Limits
}

// Server is the API server.
type Server struct {
	store     storage.Backend
	providers *provider.Registry
	tokens    *auth.Service
	engine    *access.Engine
	items     *item.Service
	uploads   *upload.Pipeline
	downloads *download.Service
	shares    *share.Service
	auditor   *audit.Recorder
	cfg       Config
	httpSrv   *http.Server
}

// NewServer wires the full service graph over a storage backend and a
// provider registry.
func NewServer(store storage.Backend, providers *provider.Registry, cfg Config) *Server {
	auditor := audit.NewRecorder(store)
	engine := access.NewEngine(store)
	items := item.NewService(store, engine, auditor)
	validator := quota.NewStaticValidator(store, cfg.QuotaLimits)
	uploads := upload.NewPipeline(store, providers, items, validator, auditor)
	downloads := download.NewService(store, providers, engine, auditor, cfg.RequireScan)
	shares := share.NewService(store, downloads, auditor)

	return &Server{
		store:     store,
		providers: providers,
		tokens:    auth.NewService(store),
		engine:    engine,
		items:     items,
		uploads:   uploads,
		downloads: downloads,
		shares:    shares,
		auditor:   auditor,
		cfg:       cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200, s.cfg.TrustProxy).middleware)

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Local provider blob endpoint: serves signed upload/download URLs
	// when the filesystem backend is in play.
	if lp, ok := s.providers.Default().(*provider.LocalProvider); ok {
		r.Mount("/blob", lp.Handler())
	}

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Post("/v1/auth/register", s.RegisterHandler)
		r.Get("/v1/links/{linkID}", s.LinkInfoHandler)
		r.Post("/v1/links/{linkID}/access", s.LinkAccessHandler)
	})

	// Scanner callbacks (shared secret, not principal auth)
	r.Group(func(r chi.Router) {
		r.Use(scannerMiddleware(s.cfg.ScannerSecret))
		r.Post("/v1/uploads/{id}/scan-result", s.ScanResultHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.tokens))

		r.Post("/v1/auth/token", s.TokenMintHandler)

		r.Post("/v1/items", s.ItemCreateHandler)
		r.Get("/v1/items", s.ItemListHandler)
		r.Get("/v1/items/{id}", s.ItemGetHandler)
		r.Patch("/v1/items/{id}", s.ItemUpdateHandler)
		r.Post("/v1/items/{id}/move", s.ItemMoveHandler)
		r.Delete("/v1/items/{id}", s.ItemDeleteHandler)
		r.Post("/v1/items/{id}/restore", s.ItemRestoreHandler)

		r.Post("/v1/uploads", s.UploadRegisterHandler)
		r.Post("/v1/uploads/{id}/promote", s.PromoteHandler)

		r.Get("/v1/items/{id}/download-url", s.DownloadURLHandler)
		r.Get("/v1/download-url", s.LegacyDownloadURLHandler)

		r.Post("/v1/items/{id}/share", s.ShareHandler)
		r.Delete("/v1/items/{id}/share", s.UnshareHandler)
		r.Get("/v1/items/{id}/permissions", s.PermissionsHandler)
		r.Post("/v1/items/{id}/links", s.LinkCreateHandler)
		r.Get("/v1/items/{id}/links", s.LinkListHandler)
		r.Get("/v1/share/analytics", s.ShareAnalyticsHandler)

		r.Get("/v1/sys/audit-log", s.AuditLogHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
