// Package domain defines key groups: named sets of certificates that can be used
// as a single recipient (for example "security-team") when resolving keys.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

// KeyGroup is a named set of certificate fingerprints.
// Fingerprints are stored normalized and may span both protocols; the resolver
// picks the members matching the protocol it resolves for.
type KeyGroup struct {
	ID           uuid.UUID
	Name         string
	Description  string
	Fingerprints []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy of the group.
func (g *KeyGroup) Clone() *KeyGroup {
	if g == nil {
		return nil
	}
	clone := *g
	clone.Fingerprints = append([]string(nil), g.Fingerprints...)
	return &clone
}

// NormalizeName returns the lookup key of a group name.
// Group names are matched case-insensitively, like email addresses.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeFingerprints normalizes and de-duplicates fingerprints while keeping
// their order. It fails on the first invalid fingerprint.
func NormalizeFingerprints(fingerprints []string) ([]string, error) {
	seen := make(map[string]bool, len(fingerprints))
	normalized := make([]string, 0, len(fingerprints))
	for _, fpr := range fingerprints {
		n, err := certDomain.NormalizeFingerprint(fpr)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	return normalized, nil
}
