// Package service implements the key resolution policy: which certificates
// sign and encrypt a message, per protocol, and which protocol wins.
package service

import (
	"slices"
	"time"

	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/resolver/domain"
)

// PolicyEngine resolves requests against a snapshot. It holds no state, so a
// single engine may serve concurrent requests.
type PolicyEngine struct{}

// NewPolicyEngine creates a PolicyEngine.
func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{}
}

// Resolve computes the automatic result of a normalized, validated request.
// It never fails: what cannot be resolved is reported in Result.Unresolved.
func (e *PolicyEngine) Resolve(snapshot *keycacheDomain.Snapshot, req domain.Request) *domain.Result {
	switch {
	case req.ForceProtocol != certDomain.UnknownProtocol:
		solution := e.solve(snapshot, req, req.ForceProtocol)
		return &domain.Result{Solution: *solution}
	case req.AllowMixed:
		return &domain.Result{Solution: *e.solveMixed(snapshot, req)}
	default:
		return e.arbitrate(snapshot, req)
	}
}

// arbitrate picks one protocol for the whole request. A complete solution
// beats an incomplete one; between two complete ones, or two incomplete ones
// covering the same number of addresses, the preferred protocol wins.
func (e *PolicyEngine) arbitrate(snapshot *keycacheDomain.Snapshot, req domain.Request) *domain.Result {
	preferred := req.Protocols()[0]
	first := e.solve(snapshot, req, preferred)
	second := e.solve(snapshot, req, preferred.Other())

	chosen, other := first, second
	switch {
	case first.Complete:
	case second.Complete:
		chosen, other = second, first
	case second.ResolvedCount() > first.ResolvedCount():
		chosen, other = second, first
	}
	return &domain.Result{Solution: *chosen, Alternative: other}
}

// solve resolves every address of req with one protocol.
func (e *PolicyEngine) solve(
	snapshot *keycacheDomain.Snapshot,
	req domain.Request,
	protocol certDomain.Protocol,
) *domain.Solution {
	solution := domain.NewSolution(protocol)

	if req.Sign {
		keys, unresolved := e.resolveAddress(snapshot, req, req.Sender, protocol, certDomain.OperationSign)
		if unresolved != nil {
			solution.Unresolved = append(solution.Unresolved, *unresolved)
		} else {
			solution.SigningKeys[protocol] = keys
		}
	}
	if req.Encrypt {
		for _, address := range req.EncryptionAddresses() {
			keys, unresolved := e.resolveAddress(snapshot, req, address, protocol, certDomain.OperationEncrypt)
			if unresolved != nil {
				solution.Unresolved = append(solution.Unresolved, *unresolved)
				continue
			}
			solution.AddEncryptionKeys(protocol, address, keys...)
		}
	}

	solution.Evaluate(req)
	return solution
}

// solveMixed resolves every address with every allowed protocol and keeps
// all the keys found. An address is unresolved only when no protocol has a
// key for it.
func (e *PolicyEngine) solveMixed(snapshot *keycacheDomain.Snapshot, req domain.Request) *domain.Solution {
	protocols := req.Protocols()
	perProtocol := make(map[certDomain.Protocol]*domain.Solution, len(protocols))
	for _, protocol := range protocols {
		perProtocol[protocol] = e.solve(snapshot, req, protocol)
	}

	mixed := domain.NewSolution(certDomain.UnknownProtocol)
	mixed.Mixed = true

	if req.Encrypt {
		for _, address := range req.EncryptionAddresses() {
			for _, protocol := range protocols {
				mixed.AddEncryptionKeys(protocol, address, perProtocol[protocol].EncryptionKeys[protocol][address]...)
			}
			if len(mixed.EncryptionKeysFor(address)) > 0 {
				continue
			}
			for _, protocol := range protocols {
				mixed.Unresolved = append(mixed.Unresolved,
					unresolvedFor(perProtocol[protocol], address, certDomain.OperationEncrypt)...)
			}
		}
	}

	if req.Sign {
		signing := signingProtocols(mixed, req, protocols, perProtocol)
		for _, protocol := range signing {
			if keys := perProtocol[protocol].SigningKeys[protocol]; len(keys) > 0 {
				mixed.SigningKeys[protocol] = keys
				continue
			}
			mixed.Unresolved = append(mixed.Unresolved,
				unresolvedFor(perProtocol[protocol], req.Sender, certDomain.OperationSign)...)
		}
	}

	// A mixed request that ends up using a single protocol reports it.
	if used := mixed.ProtocolsUsed(); len(used) == 1 && len(mixed.Unresolved) == 0 {
		mixed.Protocol = used[0]
		mixed.Mixed = false
	}
	mixed.Evaluate(req)
	return mixed
}

// signingProtocols returns the protocols that need a signing key: those used
// to encrypt, or the first protocol able to sign for a sign-only request.
func signingProtocols(
	mixed *domain.Solution,
	req domain.Request,
	protocols []certDomain.Protocol,
	perProtocol map[certDomain.Protocol]*domain.Solution,
) []certDomain.Protocol {
	if req.Encrypt {
		used := lo.Filter(protocols, func(p certDomain.Protocol, _ int) bool {
			return len(mixed.EncryptionKeys[p]) > 0
		})
		if len(used) > 0 {
			return used
		}
	}
	for _, protocol := range protocols {
		if len(perProtocol[protocol].SigningKeys[protocol]) > 0 {
			return []certDomain.Protocol{protocol}
		}
	}
	return protocols[:1]
}

func unresolvedFor(solution *domain.Solution, address string, op certDomain.Operation) []domain.Unresolved {
	return lo.Filter(solution.Unresolved, func(u domain.Unresolved, _ int) bool {
		return u.Address == address && u.Operation == op
	})
}

// resolveAddress returns the keys of protocol for address, or why there are
// none. Overrides come first, then groups, then the address's certificates.
func (e *PolicyEngine) resolveAddress(
	snapshot *keycacheDomain.Snapshot,
	req domain.Request,
	address string,
	protocol certDomain.Protocol,
	op certDomain.Operation,
) ([]*certDomain.Certificate, *domain.Unresolved) {
	unresolved := &domain.Unresolved{
		Address:   address,
		Protocol:  protocol,
		Operation: op,
		Reason:    domain.ReasonNoKey,
	}
	email := certDomain.EmailOrEmpty(address)

	if fprs := req.Overrides.For(protocol, address); len(fprs) > 0 {
		certs := ofProtocol(snapshot.FindByFingerprints(fprs), protocol)
		usable := lo.Filter(certs, func(c *certDomain.Certificate, _ int) bool {
			return c.UsableFor(op, req.Now)
		})
		if len(usable) > 0 {
			return usable, nil
		}
		unresolved.Candidates = candidates(certs, email, op, req.Now)
		return nil, unresolved
	}

	if op == certDomain.OperationEncrypt && email == "" {
		if _, ok := snapshot.Group(address); ok {
			members := ofProtocol(snapshot.GroupMembers(address), protocol)
			usable := lo.Filter(members, func(c *certDomain.Certificate, _ int) bool {
				return c.UsableFor(op, req.Now)
			})
			if len(usable) > 0 {
				return usable, nil
			}
			unresolved.Candidates = candidates(members, "", op, req.Now)
			return nil, unresolved
		}
	}

	if email == "" {
		return nil, unresolved
	}

	certs := ofProtocol(snapshot.FindByEmail(email), protocol)
	usable := lo.Filter(certs, func(c *certDomain.Certificate, _ int) bool {
		return c.UsableFor(op, req.Now) && c.ValidityFor(email).AtLeast(req.Minimum())
	})

	switch len(usable) {
	case 0:
		unresolved.Candidates = candidates(certs, email, op, req.Now)
		return nil, unresolved
	case 1:
		return usable, nil
	}

	rank(usable, email, op, req.Now)
	if !outranks(usable[0], usable[1], email, op, req.Now) {
		unresolved.Reason = domain.ReasonAmbiguous
		unresolved.Candidates = candidates(usable, email, op, req.Now)
		return nil, unresolved
	}
	return usable[:1], nil
}

func ofProtocol(certs []*certDomain.Certificate, protocol certDomain.Protocol) []*certDomain.Certificate {
	return lo.Filter(certs, func(c *certDomain.Certificate, _ int) bool {
		return c.Protocol == protocol
	})
}

// rank orders certificates best first: highest validity for the address, then
// the most recent relevant subkey.
func rank(certs []*certDomain.Certificate, email string, op certDomain.Operation, now time.Time) {
	slices.SortStableFunc(certs, func(a, b *certDomain.Certificate) int {
		switch {
		case outranks(a, b, email, op, now):
			return -1
		case outranks(b, a, email, op, now):
			return 1
		default:
			return 0
		}
	})
}

func outranks(a, b *certDomain.Certificate, email string, op certDomain.Operation, now time.Time) bool {
	va, vb := a.ValidityFor(email), b.ValidityFor(email)
	if va != vb {
		return va > vb
	}
	return a.RelevantCreationTime(op, now).After(b.RelevantCreationTime(op, now))
}

func candidates(
	certs []*certDomain.Certificate,
	email string,
	op certDomain.Operation,
	now time.Time,
) []domain.Candidate {
	return lo.Map(certs, func(c *certDomain.Certificate, _ int) domain.Candidate {
		return domain.Candidate{
			Certificate: c,
			Validity:    c.ValidityFor(email),
			Usable:      c.UsableFor(op, now),
		}
	})
}
