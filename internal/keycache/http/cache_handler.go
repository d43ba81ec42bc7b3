package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/httputil"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/http/dto"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// CacheHandler reports the cache state and triggers refreshes.
type CacheHandler struct {
	store          keycacheUseCase.SnapshotSource
	refreshUseCase keycacheUseCase.RefreshUseCase
	logger         *slog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(
	store keycacheUseCase.SnapshotSource,
	refreshUseCase keycacheUseCase.RefreshUseCase,
	logger *slog.Logger,
) *CacheHandler {
	return &CacheHandler{
		store:          store,
		refreshUseCase: refreshUseCase,
		logger:         logger,
	}
}

// GetHandler describes the current snapshot.
// GET /v1/cache
// Returns 200 OK with generation, population state and counts.
func (h *CacheHandler) GetHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MapSnapshotToResponse(h.store.Snapshot()))
}

// RefreshHandler schedules a refresh of the given protocols (all when none).
// POST /v1/cache/refresh?wait=true
// Returns 202 Accepted, or 200 OK with the pass result when wait is true.
// Engine failures are reported in the body; the pass still publishes a snapshot.
func (h *CacheHandler) RefreshHandler(c *gin.Context) {
	wait, err := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if err != nil {
		httputil.HandleBadRequestGin(c, errors.New("invalid wait parameter: must be a boolean"), h.logger)
		return
	}

	var req dto.RefreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	protocols, err := certDomain.ParseProtocols(req.Protocols)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if !wait {
		h.refreshUseCase.StartRefresh(c.Request.Context(), protocols...)
		c.JSON(http.StatusAccepted, dto.RefreshAcceptedResponse{
			Status: "scheduled",
			Protocols: lo.Map(protocols, func(p certDomain.Protocol, _ int) string {
				return p.String()
			}),
		})
		return
	}

	result, err := h.refreshUseCase.Refresh(c.Request.Context(), protocols...)
	if err != nil && (result.Generation == 0 || errors.Is(err, domain.ErrControllerClosed)) {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRefreshResultToResponse(result))
}
