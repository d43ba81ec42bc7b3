package domain

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/keycache/internal/validation"
)

// KeyGroupInput carries the mutable fields of a key group.
// Create and Update both take the whole set.
type KeyGroupInput struct {
	Name         string
	Description  string
	Fingerprints []string
}

// Validate checks the input before normalization.
func (i KeyGroupInput) Validate() error {
	err := validation.ValidateStruct(&i,
		validation.Field(&i.Name,
			validation.Required,
			customValidation.NotBlank,
			validation.RuneLength(1, 255),
		),
		validation.Field(&i.Description, validation.RuneLength(0, 1024)),
		validation.Field(&i.Fingerprints,
			validation.Required,
			validation.Each(validation.Required, customValidation.Fingerprint),
		),
	)
	return customValidation.WrapValidationError(err)
}

// Normalized returns the group name and fingerprints in their stored form.
func (i KeyGroupInput) Normalized() (string, []string, error) {
	fingerprints, err := NormalizeFingerprints(i.Fingerprints)
	if err != nil {
		return "", nil, err
	}
	return NormalizeName(i.Name), fingerprints, nil
}
