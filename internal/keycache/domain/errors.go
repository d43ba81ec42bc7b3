package domain

import (
	"fmt"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
)

// Key cache errors.
var (
	// ErrEngine indicates that the key-listing engine failed. It is attached to
	// refresh results, never returned from lookups.
	ErrEngine = errors.Wrap(errors.ErrUnavailable, "key listing engine failed")

	// ErrCertificateNotFound indicates no certificate matches an identifier.
	ErrCertificateNotFound = errors.Wrap(errors.ErrNotFound, "certificate not found")

	// ErrAmbiguousKeyID indicates a key ID owned by several certificates.
	ErrAmbiguousKeyID = errors.Wrap(errors.ErrConflict, "key id matches several certificates")

	// ErrControllerClosed indicates a refresh was requested after shutdown.
	ErrControllerClosed = errors.Wrap(errors.ErrUnavailable, "refresh controller closed")
)

// EngineError is the failure of listing one protocol. It matches ErrEngine
// and the underlying cause with errors.Is.
type EngineError struct {
	Protocol certDomain.Protocol
	Err      error
}

// Error implements error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s key listing failed: %v", e.Protocol, e.Err)
}

// Unwrap returns ErrEngine and the underlying engine error.
func (e *EngineError) Unwrap() []error {
	return []error{ErrEngine, e.Err}
}
