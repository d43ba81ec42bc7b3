package dto

import (
	"time"

	validation "github.com/jellydator/validation"
	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// SignatureRequest is one signature reported by a verification.
type SignatureRequest struct {
	Fingerprint string    `json:"fingerprint"` // Primary or subkey fingerprint, or a key ID
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks if the signature is valid.
func (r SignatureRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fingerprint,
			validation.Required,
			customValidation.KeyIdentifier,
		),
	)
}

// FindSignersRequest contains the signatures of a verification result.
type FindSignersRequest struct {
	Signatures []SignatureRequest `json:"signatures"`
}

// Validate checks if the find signers request is valid.
func (r *FindSignersRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Signatures, validation.Required),
	)
}

// ToDomain converts the request to a verification result.
func (r *FindSignersRequest) ToDomain() certDomain.VerificationResult {
	return certDomain.VerificationResult{
		Signatures: lo.Map(r.Signatures, func(s SignatureRequest, _ int) certDomain.Signature {
			return certDomain.Signature{
				Fingerprint: s.Fingerprint,
				Status:      s.Status,
				Summary:     s.Summary,
				CreatedAt:   s.CreatedAt,
			}
		}),
	}
}

// RecipientRequest is one recipient reported by a decryption.
type RecipientRequest struct {
	KeyID    string `json:"key_id"`
	Protocol string `json:"protocol"` // Optional, "openpgp" or "cms"
}

// Validate checks if the recipient is valid.
func (r RecipientRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.KeyID,
			validation.Required,
			customValidation.KeyIdentifier,
		),
		validation.Field(&r.Protocol, customValidation.Protocol),
	)
}

// FindRecipientsRequest contains the recipients of a decryption result.
type FindRecipientsRequest struct {
	Recipients []RecipientRequest `json:"recipients"`
}

// Validate checks if the find recipients request is valid.
func (r *FindRecipientsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Recipients, validation.Required),
	)
}

// ToDomain converts the request to a decryption result. Call Validate first.
func (r *FindRecipientsRequest) ToDomain() certDomain.DecryptionResult {
	return certDomain.DecryptionResult{
		Recipients: lo.Map(r.Recipients, func(rr RecipientRequest, _ int) certDomain.Recipient {
			protocol := certDomain.UnknownProtocol
			if rr.Protocol != "" {
				protocol, _ = certDomain.ParseProtocol(rr.Protocol)
			}
			return certDomain.Recipient{KeyID: rr.KeyID, Protocol: protocol}
		}),
	}
}

// RefreshRequest optionally restricts a refresh to some protocols.
type RefreshRequest struct {
	Protocols []string `json:"protocols"`
}

// Validate checks if the refresh request is valid.
func (r *RefreshRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Protocols, validation.Each(validation.Required, customValidation.Protocol)),
	)
}
