// Package http provides HTTP handlers for key group management.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/keycache/internal/groups/http/dto"
	groupsUseCase "github.com/allisson/keycache/internal/groups/usecase"
	"github.com/allisson/keycache/internal/httputil"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// KeyGroupHandler handles HTTP requests for key group management.
type KeyGroupHandler struct {
	keyGroupUseCase groupsUseCase.KeyGroupUseCase
	logger          *slog.Logger
}

// NewKeyGroupHandler creates a new key group handler.
func NewKeyGroupHandler(keyGroupUseCase groupsUseCase.KeyGroupUseCase, logger *slog.Logger) *KeyGroupHandler {
	return &KeyGroupHandler{
		keyGroupUseCase: keyGroupUseCase,
		logger:          logger,
	}
}

func (h *KeyGroupHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid key group ID format: must be a valid UUID"),
			h.logger)
		return uuid.Nil, false
	}
	return groupID, true
}

func (h *KeyGroupHandler) bind(c *gin.Context) (*dto.KeyGroupRequest, bool) {
	var req dto.KeyGroupRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return nil, false
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return nil, false
	}
	return &req, true
}

// CreateHandler creates a key group.
// POST /v1/groups
// Returns 201 Created with the stored group, 409 Conflict when the name is taken.
func (h *KeyGroupHandler) CreateHandler(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	group, err := h.keyGroupUseCase.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapKeyGroupToResponse(group))
}

// ListHandler lists key groups ordered by name.
// GET /v1/groups?offset=0&limit=50
func (h *KeyGroupHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	groups, err := h.keyGroupUseCase.List(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKeyGroupsToListResponse(groups))
}

// GetHandler retrieves a key group by ID.
// GET /v1/groups/:id
func (h *KeyGroupHandler) GetHandler(c *gin.Context) {
	groupID, ok := h.parseID(c)
	if !ok {
		return
	}

	group, err := h.keyGroupUseCase.Get(c.Request.Context(), groupID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKeyGroupToResponse(group))
}

// UpdateHandler replaces a key group.
// PUT /v1/groups/:id
// Returns 200 OK with the updated group.
func (h *KeyGroupHandler) UpdateHandler(c *gin.Context) {
	groupID, ok := h.parseID(c)
	if !ok {
		return
	}

	req, ok := h.bind(c)
	if !ok {
		return
	}

	group, err := h.keyGroupUseCase.Update(c.Request.Context(), groupID, req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKeyGroupToResponse(group))
}

// DeleteHandler removes a key group.
// DELETE /v1/groups/:id
// Returns 204 No Content.
func (h *KeyGroupHandler) DeleteHandler(c *gin.Context) {
	groupID, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.keyGroupUseCase.Delete(c.Request.Context(), groupID); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}
