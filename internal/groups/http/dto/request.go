// Package dto provides data transfer objects for key group HTTP requests and responses.
package dto

import (
	validation "github.com/jellydator/validation"

	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// KeyGroupRequest contains the parameters for creating or replacing a key group.
type KeyGroupRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Fingerprints []string `json:"fingerprints"`
}

// Validate checks if the key group request is valid.
func (r *KeyGroupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&r.Fingerprints,
			validation.Required,
			validation.Each(validation.Required, customValidation.Fingerprint),
		),
	)
}

// ToDomain converts the request to a use case input.
func (r *KeyGroupRequest) ToDomain() groupsDomain.KeyGroupInput {
	return groupsDomain.KeyGroupInput{
		Name:         r.Name,
		Description:  r.Description,
		Fingerprints: r.Fingerprints,
	}
}
