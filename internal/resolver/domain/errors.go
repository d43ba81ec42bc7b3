package domain

import (
	"github.com/allisson/keycache/internal/errors"
)

// Key resolution error definitions.
var (
	// ErrInvalidRequest indicates a resolution request that cannot be served.
	ErrInvalidRequest = errors.Wrap(errors.ErrInvalidInput, "invalid resolution request")

	// ErrAmbiguous indicates several equally valid candidates for an address.
	ErrAmbiguous = errors.Wrap(errors.ErrConflict, "ambiguous key resolution")

	// ErrPolicyViolation indicates that required keys could not be resolved
	// under the request's constraints (forced protocol, encryption required).
	ErrPolicyViolation = errors.Wrap(errors.ErrInvalidInput, "key resolution policy violation")

	// ErrNoApprover indicates an incomplete resolution without an approver to
	// complete it.
	ErrNoApprover = errors.Wrap(ErrPolicyViolation, "incomplete resolution requires approval")

	// ErrCanceled indicates the approver canceled the resolution.
	ErrCanceled = errors.New("key resolution canceled")

	// ErrAlreadyStarted indicates Start was called twice on the same resolver.
	ErrAlreadyStarted = errors.Wrap(errors.ErrConflict, "key resolution already started")
)
