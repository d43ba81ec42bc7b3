// Package dto provides data transfer objects for the certificate and cache endpoints.
package dto

import (
	"time"

	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
)

// UserIDResponse represents a user ID of a certificate.
type UserIDResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Validity string `json:"validity"`
	Revoked  bool   `json:"revoked"`
	Invalid  bool   `json:"invalid"`
}

// SubkeyResponse represents a subkey of a certificate.
type SubkeyResponse struct {
	Fingerprint  string     `json:"fingerprint"`
	KeyID        string     `json:"key_id"`
	Keygrip      string     `json:"keygrip,omitempty"`
	Capabilities []string   `json:"capabilities"`
	HasSecret    bool       `json:"has_secret"`
	Revoked      bool       `json:"revoked"`
	Expired      bool       `json:"expired"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CertificateResponse represents a certificate in API responses.
type CertificateResponse struct {
	Protocol          string           `json:"protocol"`
	Fingerprint       string           `json:"fingerprint"`
	KeyID             string           `json:"key_id"`
	Keygrip           string           `json:"keygrip,omitempty"`
	IssuerFingerprint string           `json:"issuer_fingerprint,omitempty"`
	IssuerName        string           `json:"issuer_name,omitempty"`
	SubjectName       string           `json:"subject_name,omitempty"`
	OwnerTrust        string           `json:"owner_trust"`
	Capabilities      []string         `json:"capabilities"`
	HasSecret         bool             `json:"has_secret"`
	IsRoot            bool             `json:"is_root"`
	Revoked           bool             `json:"revoked"`
	Expired           bool             `json:"expired"`
	Disabled          bool             `json:"disabled"`
	Invalid           bool             `json:"invalid"`
	UserIDs           []UserIDResponse `json:"user_ids"`
	Subkeys           []SubkeyResponse `json:"subkeys"`
	CreatedAt         time.Time        `json:"created_at"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	Origin            string           `json:"origin,omitempty"`
}

// ListCertificatesResponse wraps a page of certificates.
type ListCertificatesResponse struct {
	Data  []CertificateResponse `json:"data"`
	Total int                   `json:"total"`
}

func capabilities(sign, encrypt, certify, authenticate bool) []string {
	caps := make([]string, 0, 4)
	if sign {
		caps = append(caps, "sign")
	}
	if encrypt {
		caps = append(caps, "encrypt")
	}
	if certify {
		caps = append(caps, "certify")
	}
	if authenticate {
		caps = append(caps, "authenticate")
	}
	return caps
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// MapCertificateToResponse converts a domain certificate to an API response.
func MapCertificateToResponse(c *certDomain.Certificate) CertificateResponse {
	return CertificateResponse{
		Protocol:          c.Protocol.String(),
		Fingerprint:       c.Fingerprint,
		KeyID:             c.KeyID,
		Keygrip:           c.Keygrip,
		IssuerFingerprint: c.IssuerFingerprint,
		IssuerName:        c.IssuerName,
		SubjectName:       c.SubjectName,
		OwnerTrust:        c.OwnerTrust.String(),
		Capabilities:      capabilities(c.CanSign, c.CanEncrypt, c.CanCertify, c.CanAuthenticate),
		HasSecret:         c.HasSecret,
		IsRoot:            c.IsRoot,
		Revoked:           c.Revoked,
		Expired:           c.Expired,
		Disabled:          c.Disabled,
		Invalid:           c.Invalid,
		UserIDs: lo.Map(c.UserIDs, func(u certDomain.UserID, _ int) UserIDResponse {
			return UserIDResponse{
				ID:       u.ID,
				Name:     u.Name,
				Email:    u.Email,
				Comment:  u.Comment,
				Validity: u.Validity.String(),
				Revoked:  u.Revoked,
				Invalid:  u.Invalid,
			}
		}),
		Subkeys: lo.Map(c.Subkeys, func(s certDomain.Subkey, _ int) SubkeyResponse {
			return SubkeyResponse{
				Fingerprint:  s.Fingerprint,
				KeyID:        s.KeyID,
				Keygrip:      s.Keygrip,
				Capabilities: capabilities(s.CanSign, s.CanEncrypt, s.CanCertify, s.CanAuthenticate),
				HasSecret:    s.HasSecret,
				Revoked:      s.Revoked,
				Expired:      s.Expired,
				CreatedAt:    s.CreatedAt,
				ExpiresAt:    optionalTime(s.ExpiresAt),
			}
		}),
		CreatedAt: c.CreatedAt,
		ExpiresAt: optionalTime(c.ExpiresAt),
		Origin:    c.Origin,
	}
}

// MapCertificatesToResponse converts a list of certificates.
func MapCertificatesToResponse(certs []*certDomain.Certificate) []CertificateResponse {
	return lo.Map(certs, func(c *certDomain.Certificate, _ int) CertificateResponse {
		return MapCertificateToResponse(c)
	})
}

// MapCertificateListToResponse wraps an unpaginated list of certificates.
func MapCertificateListToResponse(certs []*certDomain.Certificate) ListCertificatesResponse {
	return ListCertificatesResponse{
		Data:  MapCertificatesToResponse(certs),
		Total: len(certs),
	}
}

// CacheResponse describes the current snapshot.
type CacheResponse struct {
	Generation uint64         `json:"generation"`
	Populated  bool           `json:"populated"`
	BuiltAt    *time.Time     `json:"built_at,omitempty"`
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
	Groups     []string       `json:"groups"`
}

// MapSnapshotToResponse summarizes a snapshot.
func MapSnapshotToResponse(s *domain.Snapshot) CacheResponse {
	counts := make(map[string]int, len(certDomain.Protocols))
	for _, p := range certDomain.Protocols {
		counts[p.String()] = 0
	}
	for p, n := range s.CountByProtocol() {
		counts[p.String()] = n
	}
	return CacheResponse{
		Generation: s.Generation(),
		Populated:  s.Populated(),
		BuiltAt:    optionalTime(s.BuiltAt()),
		Total:      s.Len(),
		Counts:     counts,
		Groups: lo.Map(s.Groups(), func(g *groupsDomain.KeyGroup, _ int) string {
			return g.Name
		}),
	}
}

// ProtocolResultResponse reports one protocol of a refresh pass.
type ProtocolResultResponse struct {
	Protocol string `json:"protocol"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

// RefreshResponse reports a finished refresh pass.
type RefreshResponse struct {
	Generation uint64                   `json:"generation"`
	Succeeded  bool                     `json:"succeeded"`
	Protocols  []ProtocolResultResponse `json:"protocols"`
	GroupCount int                      `json:"group_count"`
	GroupsErr  string                   `json:"groups_error,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// MapRefreshResultToResponse converts a refresh result.
func MapRefreshResultToResponse(r domain.RefreshResult) RefreshResponse {
	return RefreshResponse{
		Generation: r.Generation,
		Succeeded:  r.Succeeded(),
		Protocols: lo.Map(r.Protocols, func(p domain.ProtocolResult, _ int) ProtocolResultResponse {
			return ProtocolResultResponse{
				Protocol: p.Protocol.String(),
				Count:    p.Count,
				Error:    errorString(p.Err),
			}
		}),
		GroupCount: r.GroupCount,
		GroupsErr:  errorString(r.GroupsErr),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// RefreshAcceptedResponse is returned when a refresh was scheduled without waiting.
type RefreshAcceptedResponse struct {
	Status    string   `json:"status"`
	Protocols []string `json:"protocols"`
}
