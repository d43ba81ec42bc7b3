package domain

import (
	certDomain "github.com/allisson/keycache/internal/certificate/domain"
)

// UnresolvedReason tells why an address got no key.
type UnresolvedReason int

const (
	// ReasonNoKey means no usable certificate exists for the address.
	ReasonNoKey UnresolvedReason = iota + 1
	// ReasonAmbiguous means several certificates are equally good.
	ReasonAmbiguous
)

// String returns the snake_case name of the reason.
func (r UnresolvedReason) String() string {
	switch r {
	case ReasonNoKey:
		return "no_key"
	case ReasonAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r UnresolvedReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Candidate is a certificate offered to the approver for an address.
type Candidate struct {
	Certificate *certDomain.Certificate
	Validity    certDomain.Validity // Validity of the user ID matching the address
	Usable      bool
}

// Unresolved describes an address and operation left without a key.
type Unresolved struct {
	Address    string
	Protocol   certDomain.Protocol
	Operation  certDomain.Operation
	Reason     UnresolvedReason
	Candidates []Candidate
}

// Solution is a set of keys covering a request, for one protocol or mixed.
type Solution struct {
	Protocol       certDomain.Protocol // UnknownProtocol when Mixed
	Mixed          bool
	SigningKeys    map[certDomain.Protocol][]*certDomain.Certificate
	EncryptionKeys map[certDomain.Protocol]map[string][]*certDomain.Certificate
	Unresolved     []Unresolved
	Complete       bool
}

// NewSolution returns an empty solution for protocol.
func NewSolution(protocol certDomain.Protocol) *Solution {
	return &Solution{
		Protocol:       protocol,
		SigningKeys:    make(map[certDomain.Protocol][]*certDomain.Certificate),
		EncryptionKeys: make(map[certDomain.Protocol]map[string][]*certDomain.Certificate),
	}
}

// AddEncryptionKeys records keys of protocol for address.
func (s *Solution) AddEncryptionKeys(protocol certDomain.Protocol, address string, keys ...*certDomain.Certificate) {
	if len(keys) == 0 {
		return
	}
	byAddress, ok := s.EncryptionKeys[protocol]
	if !ok {
		byAddress = make(map[string][]*certDomain.Certificate)
		s.EncryptionKeys[protocol] = byAddress
	}
	byAddress[address] = append(byAddress[address], keys...)
}

// EncryptionKeysFor returns the keys of every protocol for address.
func (s *Solution) EncryptionKeysFor(address string) []*certDomain.Certificate {
	var keys []*certDomain.Certificate
	for _, protocol := range certDomain.Protocols {
		keys = append(keys, s.EncryptionKeys[protocol][address]...)
	}
	return keys
}

// ProtocolsUsed returns the protocols that have any key, in preference order.
func (s *Solution) ProtocolsUsed() []certDomain.Protocol {
	var used []certDomain.Protocol
	for _, protocol := range certDomain.Protocols {
		if len(s.SigningKeys[protocol]) > 0 || len(s.EncryptionKeys[protocol]) > 0 {
			used = append(used, protocol)
		}
	}
	return used
}

// ResolvedCount returns the number of satisfied slots: one for signing and
// one per encryption address.
func (s *Solution) ResolvedCount() int {
	count := 0
	for _, keys := range s.SigningKeys {
		if len(keys) > 0 {
			count++
			break
		}
	}
	seen := make(map[string]bool)
	for _, byAddress := range s.EncryptionKeys {
		for address, keys := range byAddress {
			if len(keys) > 0 && !seen[address] {
				seen[address] = true
				count++
			}
		}
	}
	return count
}

// Evaluate recomputes Complete for req and returns it.
//
// A single-protocol solution needs a signing key of its protocol and a key of
// its protocol for every encryption address. A mixed solution needs a key of
// any protocol per address and a signing key for every protocol used to
// encrypt.
func (s *Solution) Evaluate(req Request) bool {
	s.Complete = s.satisfied(req)
	return s.Complete
}

func (s *Solution) satisfied(req Request) bool {
	if req.Encrypt {
		for _, address := range req.EncryptionAddresses() {
			if s.Mixed {
				if len(s.EncryptionKeysFor(address)) == 0 {
					return false
				}
				continue
			}
			if len(s.EncryptionKeys[s.Protocol][address]) == 0 {
				return false
			}
		}
	}
	if !req.Sign {
		return true
	}
	if !s.Mixed {
		return len(s.SigningKeys[s.Protocol]) > 0
	}
	if !req.Encrypt {
		return len(s.SigningKeys[certDomain.OpenPGP])+len(s.SigningKeys[certDomain.CMS]) > 0
	}
	for protocol, byAddress := range s.EncryptionKeys {
		if len(byAddress) > 0 && len(s.SigningKeys[protocol]) == 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy; certificates are cloned too.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	out := NewSolution(s.Protocol)
	out.Mixed = s.Mixed
	out.Complete = s.Complete
	for protocol, keys := range s.SigningKeys {
		out.SigningKeys[protocol] = cloneCerts(keys)
	}
	for protocol, byAddress := range s.EncryptionKeys {
		inner := make(map[string][]*certDomain.Certificate, len(byAddress))
		for address, keys := range byAddress {
			inner[address] = cloneCerts(keys)
		}
		out.EncryptionKeys[protocol] = inner
	}
	for _, u := range s.Unresolved {
		u.Candidates = append([]Candidate(nil), u.Candidates...)
		for i := range u.Candidates {
			u.Candidates[i].Certificate = u.Candidates[i].Certificate.Clone()
		}
		out.Unresolved = append(out.Unresolved, u)
	}
	return out
}

// Label returns "openpgp", "cms" or "mixed".
func (s *Solution) Label() string {
	if s.Mixed {
		return "mixed"
	}
	return s.Protocol.String()
}

func cloneCerts(certs []*certDomain.Certificate) []*certDomain.Certificate {
	out := make([]*certDomain.Certificate, 0, len(certs))
	for _, c := range certs {
		out = append(out, c.Clone())
	}
	return out
}

// Result is the automatic answer to a request. Alternative holds the other
// single-protocol solution for the approval dialog, if one was computed.
type Result struct {
	Solution
	Alternative *Solution
}

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	return &Result{
		Solution:    *r.Solution.Clone(),
		Alternative: r.Alternative.Clone(),
	}
}
