package dto

import (
	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/resolver/domain"
)

// KeyResponse is the compact form of a certificate in a resolution.
type KeyResponse struct {
	Protocol    string `json:"protocol"`
	Fingerprint string `json:"fingerprint"`
	KeyID       string `json:"key_id"`
	UserID      string `json:"user_id,omitempty"`
}

// CandidateResponse is a certificate offered for an unresolved address.
type CandidateResponse struct {
	Key      KeyResponse `json:"key"`
	Validity string      `json:"validity"`
	Usable   bool        `json:"usable"`
}

// UnresolvedResponse describes an address left without a key.
type UnresolvedResponse struct {
	Address    string              `json:"address"`
	Protocol   string              `json:"protocol"`
	Operation  string              `json:"operation"`
	Reason     string              `json:"reason"`
	Candidates []CandidateResponse `json:"candidates"`
}

// SolutionResponse is a set of keys for one protocol, or "mixed".
type SolutionResponse struct {
	Protocol       string                              `json:"protocol"`
	Complete       bool                                `json:"complete"`
	SigningKeys    map[string][]KeyResponse            `json:"signing_keys"`
	EncryptionKeys map[string]map[string][]KeyResponse `json:"encryption_keys"`
	Unresolved     []UnresolvedResponse                `json:"unresolved"`
}

// ResolveResponse is the answer of POST /v1/resolve.
type ResolveResponse struct {
	SolutionResponse
	Alternative *SolutionResponse `json:"alternative,omitempty"`
}

func mapKey(c *certDomain.Certificate) KeyResponse {
	return KeyResponse{
		Protocol:    c.Protocol.String(),
		Fingerprint: c.Fingerprint,
		KeyID:       c.KeyID,
		UserID:      c.PrimaryUserID().ID,
	}
}

func mapKeys(certs []*certDomain.Certificate) []KeyResponse {
	return lo.Map(certs, func(c *certDomain.Certificate, _ int) KeyResponse {
		return mapKey(c)
	})
}

// MapSolutionToResponse converts a solution.
func MapSolutionToResponse(s *domain.Solution) SolutionResponse {
	signing := make(map[string][]KeyResponse, len(s.SigningKeys))
	for protocol, keys := range s.SigningKeys {
		signing[protocol.String()] = mapKeys(keys)
	}

	encryption := make(map[string]map[string][]KeyResponse, len(s.EncryptionKeys))
	for protocol, byAddress := range s.EncryptionKeys {
		inner := make(map[string][]KeyResponse, len(byAddress))
		for address, keys := range byAddress {
			inner[address] = mapKeys(keys)
		}
		encryption[protocol.String()] = inner
	}

	return SolutionResponse{
		Protocol:       s.Label(),
		Complete:       s.Complete,
		SigningKeys:    signing,
		EncryptionKeys: encryption,
		Unresolved: lo.Map(s.Unresolved, func(u domain.Unresolved, _ int) UnresolvedResponse {
			return UnresolvedResponse{
				Address:   u.Address,
				Protocol:  u.Protocol.String(),
				Operation: u.Operation.String(),
				Reason:    u.Reason.String(),
				Candidates: lo.Map(u.Candidates, func(c domain.Candidate, _ int) CandidateResponse {
					return CandidateResponse{
						Key:      mapKey(c.Certificate),
						Validity: c.Validity.String(),
						Usable:   c.Usable,
					}
				}),
			}
		}),
	}
}

// MapResultToResponse converts a resolution result.
func MapResultToResponse(r *domain.Result) ResolveResponse {
	response := ResolveResponse{SolutionResponse: MapSolutionToResponse(&r.Solution)}
	if r.Alternative != nil {
		alternative := MapSolutionToResponse(r.Alternative)
		response.Alternative = &alternative
	}
	return response
}
