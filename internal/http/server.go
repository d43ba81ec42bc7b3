// Package http provides the HTTP server, router and shared middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/keycache/internal/config"
	groupsHTTP "github.com/allisson/keycache/internal/groups/http"
	keycacheHTTP "github.com/allisson/keycache/internal/keycache/http"
	"github.com/allisson/keycache/internal/metrics"
	resolverHTTP "github.com/allisson/keycache/internal/resolver/http"
)

// CacheStatus reports whether the certificate cache finished its first load.
type CacheStatus interface {
	Initialized() bool
}

// Handlers groups the API handlers mounted under /v1.
type Handlers struct {
	Certificate *keycacheHTTP.CertificateHandler
	Lookup      *keycacheHTTP.LookupHandler
	Cache       *keycacheHTTP.CacheHandler
	Resolve     *resolverHTTP.ResolveHandler
	KeyGroup    *groupsHTTP.KeyGroupHandler // nil when key groups are disabled
}

// Server represents the HTTP server
type Server struct {
	db     *sql.DB // nil when key groups are disabled
	cache  CacheStatus
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server. db may be nil.
func NewServer(
	db *sql.DB,
	cache CacheStatus,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		cache:  cache,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine with middleware and every route.
func (s *Server) SetupRouter(
	cfg *config.Config,
	handlers Handlers,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}

	certificates := v1.Group("/certificates")
	certificates.GET("", handlers.Certificate.ListHandler)
	certificates.GET("/:id", handlers.Certificate.GetHandler)
	certificates.GET("/:id/issuers", handlers.Certificate.IssuersHandler)
	certificates.GET("/:id/subjects", handlers.Certificate.SubjectsHandler)

	lookup := v1.Group("/lookup")
	lookup.POST("/signers", handlers.Lookup.SignersHandler)
	lookup.POST("/recipients", handlers.Lookup.RecipientsHandler)

	v1.GET("/cache", handlers.Cache.GetHandler)
	v1.POST("/cache/refresh", handlers.Cache.RefreshHandler)

	v1.POST("/resolve", handlers.Resolve.ResolveHandler)

	if handlers.KeyGroup != nil {
		groups := v1.Group("/groups")
		groups.POST("", handlers.KeyGroup.CreateHandler)
		groups.GET("", handlers.KeyGroup.ListHandler)
		groups.GET("/:id", handlers.KeyGroup.GetHandler)
		groups.PUT("/:id", handlers.KeyGroup.UpdateHandler)
		groups.DELETE("/:id", handlers.KeyGroup.DeleteHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports liveness.
// GET /health
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the cache is loaded and the database, when
// used, answers.
// GET /ready
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	switch {
	case s.cache == nil || !s.cache.Initialized():
		components["cache"] = "loading"
		ready = false
	default:
		components["cache"] = "ok"
	}

	if s.db == nil {
		components["database"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness database ping failed", slog.Any("error", err))
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
