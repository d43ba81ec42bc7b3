// Package http provides the HTTP handler for key resolution.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/keycache/internal/httputil"
	"github.com/allisson/keycache/internal/resolver/http/dto"
	resolverUseCase "github.com/allisson/keycache/internal/resolver/usecase"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// ResolveHandler handles key resolution requests.
type ResolveHandler struct {
	resolverUseCase resolverUseCase.ResolverUseCase
	logger          *slog.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(resolverUseCase resolverUseCase.ResolverUseCase, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolverUseCase: resolverUseCase,
		logger:          logger,
	}
}

// ResolveHandler picks signing and encryption keys for a message.
// POST /v1/resolve
// Returns 200 OK with the automatic result. An incomplete result is not an
// error: complete is false and the unresolved addresses carry their candidates.
func (h *ResolveHandler) ResolveHandler(c *gin.Context) {
	var req dto.ResolveRequest

	// Parse and bind JSON
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	// Validate request
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.resolverUseCase.Resolve(c.Request.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapResultToResponse(result))
}
