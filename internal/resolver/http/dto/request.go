// Package dto provides data transfer objects for the key resolution endpoint.
package dto

import (
	"errors"

	validation "github.com/jellydator/validation"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/resolver/domain"
	customValidation "github.com/allisson/keycache/internal/validation"
)

// ResolveRequest contains the parameters of a key resolution.
type ResolveRequest struct {
	Sender           string   `json:"sender"`
	Recipients       []string `json:"recipients"`
	Sign             bool     `json:"sign"`
	Encrypt          bool     `json:"encrypt"`
	AllowMixed       bool     `json:"allow_mixed"`
	ForceProtocol    string   `json:"force_protocol"`    // Optional: "openpgp" or "cms"
	PresetProtocol   string   `json:"preset_protocol"`   // Optional: "openpgp" or "cms"
	AllowUnencrypted bool     `json:"allow_unencrypted"` // Recorded on the request; only the approval flow acts on it
	MinimumValidity  string   `json:"minimum_validity"`  // Optional, defaults to "marginal"
	// Overrides maps protocol -> address -> fingerprints.
	Overrides map[string]map[string][]string `json:"overrides"`
}

// Validate checks if the resolve request is valid.
func (r *ResolveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Sender,
			validation.Length(0, 255),
		),
		validation.Field(&r.Recipients,
			validation.Length(0, 1000),
			validation.Each(validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		),
		validation.Field(&r.ForceProtocol, customValidation.Protocol),
		validation.Field(&r.PresetProtocol, customValidation.Protocol),
		validation.Field(&r.MinimumValidity, customValidation.Validity),
		validation.Field(&r.Overrides, validation.By(validateOverrides)),
	)
}

func validateOverrides(value interface{}) error {
	overrides, _ := value.(map[string]map[string][]string)
	for protocol, byAddress := range overrides {
		if _, err := certDomain.ParseProtocol(protocol); err != nil {
			return errors.New("keys must be protocol names")
		}
		for address, fprs := range byAddress {
			if address == "" {
				return errors.New("addresses must not be empty")
			}
			for _, fpr := range fprs {
				if err := customValidation.Fingerprint.Validate(fpr); err != nil || fpr == "" {
					return errors.New("values must be lists of fingerprints")
				}
			}
		}
	}
	return nil
}

func parseOptionalProtocol(name string) certDomain.Protocol {
	if name == "" {
		return certDomain.UnknownProtocol
	}
	p, _ := certDomain.ParseProtocol(name)
	return p
}

// ToDomain converts the request. Call Validate first.
func (r *ResolveRequest) ToDomain() domain.Request {
	req := domain.Request{
		Sender:           r.Sender,
		Recipients:       r.Recipients,
		Sign:             r.Sign,
		Encrypt:          r.Encrypt,
		AllowMixed:       r.AllowMixed,
		ForceProtocol:    parseOptionalProtocol(r.ForceProtocol),
		PresetProtocol:   parseOptionalProtocol(r.PresetProtocol),
		AllowUnencrypted: r.AllowUnencrypted,
	}
	if r.MinimumValidity != "" {
		if minimum, err := certDomain.ParseValidity(r.MinimumValidity); err == nil {
			req.MinimumValidity = &minimum
		}
	}
	if len(r.Overrides) > 0 {
		req.Overrides = make(domain.Overrides, len(r.Overrides))
		for name, byAddress := range r.Overrides {
			protocol := parseOptionalProtocol(name)
			inner := req.Overrides[protocol]
			if inner == nil {
				inner = make(map[string][]string, len(byAddress))
				req.Overrides[protocol] = inner
			}
			for address, fprs := range byAddress {
				inner[address] = append(inner[address], fprs...)
			}
		}
	}
	return req
}
