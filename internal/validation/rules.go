// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	apperrors "github.com/allisson/keycache/internal/errors"
)

var (
	// emailRegex is a basic email validation pattern
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Email validates email format using regex
var Email = validation.NewStringRuleWithError(
	func(s string) bool {
		return emailRegex.MatchString(s)
	},
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// Fingerprint validates a 40 or 64 digit hex fingerprint. Spaces, colons and a
// 0x prefix are tolerated.
var Fingerprint = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := certDomain.NormalizeFingerprint(s)
		return err == nil
	},
	validation.NewError("validation_fingerprint", "must be a hex fingerprint"),
)

// KeyIdentifier accepts a fingerprint, a long key ID or a short key ID.
var KeyIdentifier = validation.NewStringRuleWithError(
	func(s string) bool {
		n := certDomain.NormalizeIdentifier(s)
		return certDomain.IsFingerprint(n) || certDomain.IsKeyID(n) || certDomain.IsShortKeyID(n)
	},
	validation.NewError("validation_key_identifier", "must be a fingerprint or key id"),
)

// Protocol validates a protocol name such as "openpgp" or "cms".
var Protocol = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := certDomain.ParseProtocol(s)
		return err == nil
	},
	validation.NewError("validation_protocol", "must be one of: openpgp, cms"),
)

// Validity validates a validity level name.
var Validity = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := certDomain.ParseValidity(s)
		return err == nil
	},
	validation.NewError("validation_validity", "must be a validity level"),
)
