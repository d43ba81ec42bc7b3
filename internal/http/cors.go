package http

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const corsWildcard = "*"

// createCORSMiddleware allows browser-based mail clients to call the API.
// A "*" entry allows every origin. Returns nil when CORS is disabled or no
// origin is configured.
func createCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := parseOrigins(allowOrigins)
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no origins configured, CORS will not be applied")
		return nil
	}

	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, corsWildcard) {
		config.AllowAllOrigins = true
		logger.Info("CORS enabled for all origins")
	} else {
		config.AllowOrigins = origins
		logger.Info("CORS enabled", slog.Any("origins", origins))
	}

	return cors.New(config)
}

// parseOrigins splits a comma-separated origin list, dropping blanks,
// duplicates and trailing slashes.
func parseOrigins(allowOrigins string) []string {
	origins := lo.Uniq(lo.Compact(lo.Map(strings.Split(allowOrigins, ","), func(o string, _ int) string {
		return strings.TrimSuffix(strings.TrimSpace(o), "/")
	})))
	if len(origins) == 0 {
		return nil
	}
	return origins
}
