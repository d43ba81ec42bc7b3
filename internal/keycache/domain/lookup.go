package domain

import (
	"slices"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// Every lookup returns clones. A miss is an empty result, never an error.

func (s *Snapshot) cloneAll(fingerprints []string) []*certDomain.Certificate {
	result := make([]*certDomain.Certificate, 0, len(fingerprints))
	for _, fpr := range fingerprints {
		if c, ok := s.certs[fpr]; ok {
			result = append(result, c.Clone())
		}
	}
	return result
}

// Certificates returns every certificate matching filter, ordered by protocol
// then fingerprint.
func (s *Snapshot) Certificates(filter Filter) []*certDomain.Certificate {
	result := make([]*certDomain.Certificate, 0, len(s.order))
	for _, fpr := range s.order {
		c := s.certs[fpr]
		if filter.Protocol != certDomain.UnknownProtocol && c.Protocol != filter.Protocol {
			continue
		}
		if filter.SecretOnly && !c.HasSecret {
			continue
		}
		if filter.Email != "" && !c.HasEmail(filter.Email) {
			continue
		}
		result = append(result, c.Clone())
	}
	return result
}

// SecretKeys returns every certificate with secret key material.
func (s *Snapshot) SecretKeys() []*certDomain.Certificate {
	return s.Certificates(Filter{SecretOnly: true})
}

// FindByFingerprint looks up a certificate by its full primary fingerprint.
//
// The lookup is case-insensitive and accepts only complete 40 or 64 hex digit
// fingerprints; prefixes and key IDs never match here, use FindByKeyID.
func (s *Snapshot) FindByFingerprint(fingerprint string) (*certDomain.Certificate, bool) {
	fpr, err := certDomain.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, false
	}
	c, ok := s.certs[fpr]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// FindByFingerprints looks up several fingerprints, skipping misses.
func (s *Snapshot) FindByFingerprints(fingerprints []string) []*certDomain.Certificate {
	result := make([]*certDomain.Certificate, 0, len(fingerprints))
	for _, fpr := range fingerprints {
		if c, ok := s.FindByFingerprint(fpr); ok {
			result = append(result, c)
		}
	}
	return result
}

// FindBySubkeyFingerprint resolves the fingerprint of a primary key or of any
// subkey to the owning certificate.
func (s *Snapshot) FindBySubkeyFingerprint(fingerprint string) (*certDomain.Certificate, bool) {
	fpr, err := certDomain.NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, false
	}
	if c, ok := s.certs[fpr]; ok {
		return c.Clone(), true
	}
	if owner, ok := s.bySubkeyFpr[fpr]; ok {
		return s.certs[owner].Clone(), true
	}
	return nil, false
}

// FindByKeyID returns the certificates owning a primary key or subkey with the
// given long (16 hex) or short (8 hex) key ID. Key IDs are looked up in a
// dedicated index because V4 and V5 fingerprints derive key IDs differently.
func (s *Snapshot) FindByKeyID(keyID string) []*certDomain.Certificate {
	id, err := certDomain.NormalizeKeyID(keyID)
	if err != nil {
		return nil
	}
	if certDomain.IsKeyID(id) {
		return s.cloneAll(s.byKeyID[id])
	}
	return s.cloneAll(s.byShortKeyID[id])
}

// FindByKeyIDOrFingerprint accepts a fingerprint (primary or subkey) or a key ID.
func (s *Snapshot) FindByKeyIDOrFingerprint(id string) []*certDomain.Certificate {
	n := certDomain.NormalizeIdentifier(id)
	if certDomain.IsFingerprint(n) {
		if c, ok := s.FindBySubkeyFingerprint(n); ok {
			return []*certDomain.Certificate{c}
		}
		return nil
	}
	return s.FindByKeyID(n)
}

// FindByEmail returns every certificate, of any protocol, with a user ID
// carrying the address. Addresses are compared case-insensitively.
func (s *Snapshot) FindByEmail(address string) []*certDomain.Certificate {
	email, err := certDomain.NormalizeEmail(address)
	if err != nil {
		return nil
	}
	return s.cloneAll(s.byEmail[email])
}

// FindBestByEmail returns the best certificate of a protocol usable for op:
// highest user ID validity for the address, then the most recent relevant
// subkey. It reports false when no usable certificate exists.
func (s *Snapshot) FindBestByEmail(
	address string,
	protocol certDomain.Protocol,
	op certDomain.Operation,
	now time.Time,
) (*certDomain.Certificate, bool) {
	email, err := certDomain.NormalizeEmail(address)
	if err != nil {
		return nil, false
	}

	var best *certDomain.Certificate
	for _, fpr := range s.byEmail[email] {
		c := s.certs[fpr]
		if protocol != certDomain.UnknownProtocol && c.Protocol != protocol {
			continue
		}
		if !c.UsableFor(op, now) {
			continue
		}
		if best == nil || better(c, best, email, op, now) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

func better(a, b *certDomain.Certificate, email string, op certDomain.Operation, now time.Time) bool {
	va, vb := a.ValidityFor(email), b.ValidityFor(email)
	if va != vb {
		return va > vb
	}
	return a.RelevantCreationTime(op, now).After(b.RelevantCreationTime(op, now))
}

// FindSigner resolves the certificate that made a signature. The engine may
// report the fingerprint of the primary key or of a signing subkey, or only a
// key ID; all of them resolve to the owning certificate. An ambiguous key ID
// (several owners) resolves to nothing.
func (s *Snapshot) FindSigner(sig certDomain.Signature) (*certDomain.Certificate, bool) {
	id := certDomain.NormalizeIdentifier(sig.Fingerprint)
	if certDomain.IsFingerprint(id) {
		return s.FindBySubkeyFingerprint(id)
	}
	matches := s.FindByKeyID(id)
	if len(matches) != 1 {
		return nil, false
	}
	return matches[0], true
}

// FindSigners applies FindSigner to every signature, skipping signatures whose
// signer is unknown. Each certificate is returned once.
func (s *Snapshot) FindSigners(result certDomain.VerificationResult) []*certDomain.Certificate {
	signers := make([]*certDomain.Certificate, 0, len(result.Signatures))
	seen := make(map[string]bool, len(result.Signatures))
	for _, sig := range result.Signatures {
		c, ok := s.FindSigner(sig)
		if !ok || seen[c.Fingerprint] {
			continue
		}
		seen[c.Fingerprint] = true
		signers = append(signers, c)
	}
	return signers
}

// FindRecipients returns the known certificates an encrypted message was
// encrypted to. Recipients are reported by (subkey) key ID.
func (s *Snapshot) FindRecipients(result certDomain.DecryptionResult) []*certDomain.Certificate {
	recipients := make([]*certDomain.Certificate, 0, len(result.Recipients))
	seen := make(map[string]bool, len(result.Recipients))
	for _, r := range result.Recipients {
		for _, c := range s.FindByKeyIDOrFingerprint(r.KeyID) {
			if r.Protocol != certDomain.UnknownProtocol && c.Protocol != r.Protocol {
				continue
			}
			if seen[c.Fingerprint] {
				continue
			}
			seen[c.Fingerprint] = true
			recipients = append(recipients, c)
		}
	}
	return recipients
}

// FindIssuers returns the issuer of cert and, when recursive, the issuer's
// issuers up to the root. The walk stops at a missing issuer or a loop.
func (s *Snapshot) FindIssuers(cert *certDomain.Certificate, recursive bool) []*certDomain.Certificate {
	if cert == nil {
		return nil
	}
	var issuers []*certDomain.Certificate
	visited := map[string]bool{cert.Fingerprint: true}
	current := s.certs[cert.Fingerprint]
	if current == nil {
		current = cert
	}
	for current.IssuerFingerprint != "" && !current.IsRoot {
		issuer, ok := s.certs[certDomain.NormalizeIdentifier(current.IssuerFingerprint)]
		if !ok || visited[issuer.Fingerprint] {
			break
		}
		visited[issuer.Fingerprint] = true
		issuers = append(issuers, issuer.Clone())
		if !recursive {
			break
		}
		current = issuer
	}
	return issuers
}

// FindSubjects returns the certificates issued by cert and, when recursive,
// everything issued further down the chain.
func (s *Snapshot) FindSubjects(cert *certDomain.Certificate, recursive bool) []*certDomain.Certificate {
	if cert == nil {
		return nil
	}
	var subjects []*certDomain.Certificate
	visited := map[string]bool{cert.Fingerprint: true}
	queue := []string{cert.Fingerprint}
	for len(queue) > 0 {
		issuer := queue[0]
		queue = queue[1:]
		for _, fpr := range s.bySubject[issuer] {
			if visited[fpr] {
				continue
			}
			visited[fpr] = true
			subjects = append(subjects, s.certs[fpr].Clone())
			if recursive {
				queue = append(queue, fpr)
			}
		}
	}
	return subjects
}

// Group returns the group with the given name (case-insensitive).
func (s *Snapshot) Group(name string) (*groupsDomain.KeyGroup, bool) {
	g, ok := s.groups[groupsDomain.NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// Groups returns every group sorted by name.
func (s *Snapshot) Groups() []*groupsDomain.KeyGroup {
	groups := make([]*groupsDomain.KeyGroup, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g.Clone())
	}
	slices.SortFunc(groups, func(a, b *groupsDomain.KeyGroup) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return groups
}

// GroupMembers returns the known certificates of a group. Fingerprints that
// are not in the snapshot are skipped.
func (s *Snapshot) GroupMembers(name string) []*certDomain.Certificate {
	g, ok := s.groups[groupsDomain.NormalizeName(name)]
	if !ok {
		return nil
	}
	return s.cloneAll(g.Fingerprints)
}
