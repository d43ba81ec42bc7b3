package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/keycache/internal/httputil"
	"github.com/allisson/keycache/internal/keycache/http/dto"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// LookupHandler maps verification and decryption results back to known certificates.
type LookupHandler struct {
	store  keycacheUseCase.SnapshotSource
	logger *slog.Logger
}

// NewLookupHandler creates a new lookup handler.
func NewLookupHandler(store keycacheUseCase.SnapshotSource, logger *slog.Logger) *LookupHandler {
	return &LookupHandler{
		store:  store,
		logger: logger,
	}
}

// SignersHandler resolves the certificates that made the given signatures.
// POST /v1/lookup/signers
// Returns 200 OK; unknown or ambiguous signers are left out.
func (h *LookupHandler) SignersHandler(c *gin.Context) {
	var req dto.FindSignersRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	signers := h.store.Snapshot().FindSigners(req.ToDomain())
	c.JSON(http.StatusOK, dto.MapCertificateListToResponse(signers))
}

// RecipientsHandler resolves the certificates a message was encrypted to.
// POST /v1/lookup/recipients
// Returns 200 OK; unknown recipients are left out.
func (h *LookupHandler) RecipientsHandler(c *gin.Context) {
	var req dto.FindRecipientsRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	recipients := h.store.Snapshot().FindRecipients(req.ToDomain())
	c.JSON(http.StatusOK, dto.MapCertificateListToResponse(recipients))
}
