// Package domain defines the certificate cache snapshot and refresh results.
//
// A Snapshot is an immutable, fully indexed view of every known certificate.
// The cache never mutates a published snapshot: updates build a new snapshot
// and swap it in, so a reader holding an older snapshot keeps a consistent
// (if stale) view.
package domain

import (
	"slices"
	"strings"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// Filter restricts the certificates returned by Snapshot.Certificates.
type Filter struct {
	Protocol   certDomain.Protocol // UnknownProtocol matches every protocol
	SecretOnly bool
	Email      string // Normalized email; empty matches every certificate
}

// Snapshot is an immutable set of certificates indexed by fingerprint, key ID,
// subkey fingerprint, email address and issuer.
type Snapshot struct {
	generation uint64
	populated  bool
	builtAt    time.Time

	certs        map[string]*certDomain.Certificate // primary fingerprint -> certificate
	order        []string                           // fingerprints in listing order
	byKeyID      map[string][]string                // long key ID (primary and subkeys) -> fingerprints
	byShortKeyID map[string][]string                // short key ID -> fingerprints
	bySubkeyFpr  map[string]string                  // subkey fingerprint -> primary fingerprint
	byEmail      map[string][]string                // normalized email -> fingerprints
	bySubject    map[string][]string                // issuer fingerprint -> subject fingerprints
	groups       map[string]*groupsDomain.KeyGroup  // normalized group name -> group
}

// EmptySnapshot returns the snapshot of a cache that has never been loaded.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		certs:        map[string]*certDomain.Certificate{},
		byKeyID:      map[string][]string{},
		byShortKeyID: map[string][]string{},
		bySubkeyFpr:  map[string]string{},
		byEmail:      map[string][]string{},
		bySubject:    map[string][]string{},
		groups:       map[string]*groupsDomain.KeyGroup{},
	}
}

// NewSnapshot builds a populated snapshot from certs and groups.
//
// Input certificates are cloned. Certificates without a valid fingerprint are
// skipped; when a fingerprint occurs more than once the last occurrence wins,
// keeping exactly one certificate per fingerprint.
func NewSnapshot(
	generation uint64,
	certs []*certDomain.Certificate,
	groups []*groupsDomain.KeyGroup,
	builtAt time.Time,
) *Snapshot {
	return build(generation, true, certs, groups, builtAt)
}

func build(
	generation uint64,
	populated bool,
	certs []*certDomain.Certificate,
	groups []*groupsDomain.KeyGroup,
	builtAt time.Time,
) *Snapshot {
	s := EmptySnapshot()
	s.generation = generation
	s.populated = populated
	s.builtAt = builtAt

	for _, cert := range certs {
		if cert == nil {
			continue
		}
		fpr, err := certDomain.NormalizeFingerprint(cert.Fingerprint)
		if err != nil {
			continue
		}
		if _, exists := s.certs[fpr]; !exists {
			s.order = append(s.order, fpr)
		}
		s.certs[fpr] = prepare(cert, fpr)
	}

	slices.SortStableFunc(s.order, func(a, b string) int {
		pa, pb := s.certs[a].Protocol, s.certs[b].Protocol
		if pa != pb {
			return int(pa) - int(pb)
		}
		return strings.Compare(a, b)
	})

	for _, fpr := range s.order {
		s.index(s.certs[fpr])
	}

	for _, group := range groups {
		if group == nil {
			continue
		}
		name := groupsDomain.NormalizeName(group.Name)
		if name == "" {
			continue
		}
		g := group.Clone()
		fprs := g.Fingerprints[:0]
		for _, fpr := range g.Fingerprints {
			if n, err := certDomain.NormalizeFingerprint(fpr); err == nil {
				fprs = append(fprs, n)
			}
		}
		g.Fingerprints = fprs
		s.groups[name] = g
	}

	return s
}

// prepare clones cert and fills derived fields so that indices never depend on
// what an engine did or did not report.
func prepare(cert *certDomain.Certificate, fpr string) *certDomain.Certificate {
	c := cert.Clone()
	c.Fingerprint = fpr
	if keyID, err := certDomain.NormalizeKeyID(c.KeyID); err == nil && certDomain.IsKeyID(keyID) {
		c.KeyID = keyID
	} else {
		c.KeyID = certDomain.KeyIDFromFingerprint(fpr)
	}
	if c.IssuerFingerprint != "" {
		c.IssuerFingerprint = certDomain.NormalizeIdentifier(c.IssuerFingerprint)
	}
	for i := range c.UserIDs {
		c.UserIDs[i].Email = certDomain.EmailOrEmpty(c.UserIDs[i].Email)
		c.UserIDs[i].OwnerFingerprint = fpr
	}
	for i := range c.Subkeys {
		sk := &c.Subkeys[i]
		if sk.Fingerprint != "" {
			sk.Fingerprint = certDomain.NormalizeIdentifier(sk.Fingerprint)
		}
		if sk.KeyID != "" {
			sk.KeyID = certDomain.NormalizeIdentifier(sk.KeyID)
		} else if certDomain.IsFingerprint(sk.Fingerprint) {
			sk.KeyID = certDomain.KeyIDFromFingerprint(sk.Fingerprint)
		}
	}
	return c
}

func (s *Snapshot) index(c *certDomain.Certificate) {
	for _, keyID := range c.KeyIDs() {
		s.byKeyID[keyID] = appendUnique(s.byKeyID[keyID], c.Fingerprint)
		if short := certDomain.ShortKeyID(keyID); short != "" {
			s.byShortKeyID[short] = appendUnique(s.byShortKeyID[short], c.Fingerprint)
		}
	}
	for _, sk := range c.Subkeys {
		if certDomain.IsFingerprint(sk.Fingerprint) && sk.Fingerprint != c.Fingerprint {
			s.bySubkeyFpr[sk.Fingerprint] = c.Fingerprint
		}
	}
	for _, email := range c.Emails() {
		s.byEmail[email] = appendUnique(s.byEmail[email], c.Fingerprint)
	}
	if c.IssuerFingerprint != "" && c.IssuerFingerprint != c.Fingerprint {
		s.bySubject[c.IssuerFingerprint] = appendUnique(s.bySubject[c.IssuerFingerprint], c.Fingerprint)
	}
}

func appendUnique(list []string, value string) []string {
	if slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}

// Generation returns the generation counter of the snapshot.
// It increases with every published snapshot.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Populated reports whether the snapshot results from a completed load, even
// an empty one. The initial snapshot of a cache is not populated.
func (s *Snapshot) Populated() bool {
	return s.populated
}

// BuiltAt returns the time the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Len returns the number of certificates in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.certs)
}

// CountByProtocol returns the number of certificates of each protocol.
func (s *Snapshot) CountByProtocol() map[certDomain.Protocol]int {
	counts := make(map[certDomain.Protocol]int, len(certDomain.Protocols))
	for _, c := range s.certs {
		counts[c.Protocol]++
	}
	return counts
}

// all returns the underlying certificates without copying them.
// Callers must treat the result as read-only; it is used to derive new snapshots.
func (s *Snapshot) all() []*certDomain.Certificate {
	certs := make([]*certDomain.Certificate, 0, len(s.order))
	for _, fpr := range s.order {
		certs = append(certs, s.certs[fpr])
	}
	return certs
}

func (s *Snapshot) groupList() []*groupsDomain.KeyGroup {
	groups := make([]*groupsDomain.KeyGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	return groups
}

// WithGroups derives a snapshot with the same certificates and a new set of
// groups. The populated state is kept, so an unloaded cache stays unloaded.
func (s *Snapshot) WithGroups(
	generation uint64,
	builtAt time.Time,
	groups []*groupsDomain.KeyGroup,
) *Snapshot {
	return build(generation, s.populated, s.all(), groups, builtAt)
}
