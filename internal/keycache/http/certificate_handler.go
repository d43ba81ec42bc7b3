// Package http provides HTTP handlers for certificate queries, signer and
// recipient lookups and cache management.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/httputil"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/http/dto"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
)

// CertificateHandler serves read-only certificate queries from the current snapshot.
type CertificateHandler struct {
	store  keycacheUseCase.SnapshotSource
	logger *slog.Logger
}

// NewCertificateHandler creates a new certificate handler.
func NewCertificateHandler(store keycacheUseCase.SnapshotSource, logger *slog.Logger) *CertificateHandler {
	return &CertificateHandler{
		store:  store,
		logger: logger,
	}
}

// ListHandler lists certificates with optional filters and pagination.
// GET /v1/certificates?email=&protocol=&secret=&offset=0&limit=50
// Returns 200 OK with the matching certificates ordered by protocol then fingerprint.
func (h *CertificateHandler) ListHandler(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	certs := h.store.Snapshot().Certificates(filter)
	c.JSON(http.StatusOK, dto.ListCertificatesResponse{
		Data:  dto.MapCertificatesToResponse(httputil.Page(certs, offset, limit)),
		Total: len(certs),
	})
}

func parseFilter(c *gin.Context) (domain.Filter, error) {
	var filter domain.Filter

	if email := c.Query("email"); email != "" {
		normalized, err := certDomain.NormalizeEmail(email)
		if err != nil {
			return filter, err
		}
		filter.Email = normalized
	}

	if protocol := c.Query("protocol"); protocol != "" {
		p, err := certDomain.ParseProtocol(protocol)
		if err != nil {
			return filter, err
		}
		filter.Protocol = p
	}

	if secret := c.Query("secret"); secret != "" {
		b, err := strconv.ParseBool(secret)
		if err != nil {
			return filter, fmt.Errorf("invalid secret parameter: must be a boolean")
		}
		filter.SecretOnly = b
	}

	return filter, nil
}

// lookup resolves the :id parameter (fingerprint or key ID) to one certificate.
func (h *CertificateHandler) lookup(c *gin.Context) (*certDomain.Certificate, *domain.Snapshot, error) {
	id := c.Param("id")
	n := certDomain.NormalizeIdentifier(id)
	if !certDomain.IsFingerprint(n) && !certDomain.IsKeyID(n) && !certDomain.IsShortKeyID(n) {
		return nil, nil, certDomain.ErrInvalidKeyID
	}

	snapshot := h.store.Snapshot()
	matches := snapshot.FindByKeyIDOrFingerprint(n)
	switch len(matches) {
	case 0:
		return nil, snapshot, domain.ErrCertificateNotFound
	case 1:
		return matches[0], snapshot, nil
	default:
		return nil, snapshot, domain.ErrAmbiguousKeyID
	}
}

// GetHandler retrieves a certificate by fingerprint (primary or subkey) or key ID.
// GET /v1/certificates/:id
// Returns 200 OK, 404 when unknown, 409 when a key ID has several owners.
func (h *CertificateHandler) GetHandler(c *gin.Context) {
	cert, _, err := h.lookup(c)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCertificateToResponse(cert))
}

func recursive(c *gin.Context) (bool, error) {
	value := c.DefaultQuery("recursive", "false")
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid recursive parameter: must be a boolean")
	}
	return b, nil
}

// IssuersHandler returns the issuer chain of an X.509 certificate.
// GET /v1/certificates/:id/issuers?recursive=true
// Returns 200 OK with the issuers, nearest first.
func (h *CertificateHandler) IssuersHandler(c *gin.Context) {
	rec, err := recursive(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	cert, snapshot, err := h.lookup(c)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCertificateListToResponse(snapshot.FindIssuers(cert, rec)))
}

// SubjectsHandler returns the certificates issued by a certificate.
// GET /v1/certificates/:id/subjects?recursive=true
// Returns 200 OK with the subjects in breadth-first order.
func (h *CertificateHandler) SubjectsHandler(c *gin.Context) {
	rec, err := recursive(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	cert, snapshot, err := h.lookup(c)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCertificateListToResponse(snapshot.FindSubjects(cert, rec)))
}
