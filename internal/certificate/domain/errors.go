package domain

import (
	"github.com/allisson/keycache/internal/errors"
)

// Certificate model errors. All of them wrap errors.ErrInvalidInput so that the
// HTTP layer maps them to 422 Unprocessable Entity.
var (
	// ErrUnknownProtocol indicates a protocol name that is neither OpenPGP nor CMS.
	ErrUnknownProtocol = errors.Wrap(errors.ErrInvalidInput, "unknown protocol")

	// ErrInvalidValidity indicates a validity name that is not part of the trust scale.
	ErrInvalidValidity = errors.Wrap(errors.ErrInvalidInput, "invalid validity")

	// ErrInvalidFingerprint indicates a string that is not a 40 or 64 hex digit fingerprint.
	ErrInvalidFingerprint = errors.Wrap(errors.ErrInvalidInput, "invalid fingerprint")

	// ErrInvalidKeyID indicates a string that is neither a 16 nor an 8 hex digit key ID.
	ErrInvalidKeyID = errors.Wrap(errors.ErrInvalidInput, "invalid key id")

	// ErrInvalidEmail indicates an address that cannot be parsed as a mailbox.
	ErrInvalidEmail = errors.Wrap(errors.ErrInvalidInput, "invalid email address")
)
