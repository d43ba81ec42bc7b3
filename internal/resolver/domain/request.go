// Package domain defines key resolution requests, results and the approval
// exchange with the user interface.
package domain

import (
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// Overrides maps, per protocol, an address to the fingerprints configured for
// it. Overridden keys win over store lookups but are still filtered.
type Overrides map[certDomain.Protocol]map[string][]string

// Clone returns a deep copy.
func (o Overrides) Clone() Overrides {
	if o == nil {
		return nil
	}
	out := make(Overrides, len(o))
	for protocol, byAddress := range o {
		inner := make(map[string][]string, len(byAddress))
		for address, fprs := range byAddress {
			inner[address] = append([]string(nil), fprs...)
		}
		out[protocol] = inner
	}
	return out
}

// For returns the fingerprints overriding address for protocol. Addresses are
// compared as normalized emails when possible, verbatim otherwise (groups).
func (o Overrides) For(protocol certDomain.Protocol, address string) []string {
	byAddress := o[protocol]
	if len(byAddress) == 0 {
		return nil
	}
	if fprs, ok := byAddress[address]; ok {
		return fprs
	}
	key := NormalizeAddress(address)
	for candidate, fprs := range byAddress {
		if NormalizeAddress(candidate) == key {
			return fprs
		}
	}
	return nil
}

// Request describes what keys a message needs.
type Request struct {
	Sender           string
	Recipients       []string
	Sign             bool
	Encrypt          bool
	AllowMixed       bool
	ForceProtocol    certDomain.Protocol // UnknownProtocol when not forced
	PresetProtocol   certDomain.Protocol // UnknownProtocol when no preference
	AllowUnencrypted bool
	MinimumValidity  *certDomain.Validity // nil selects DefaultMinimumValidity
	Overrides        Overrides
	Now              time.Time
}

// DefaultMinimumValidity is the validity a user ID needs unless the request
// asks for another.
const DefaultMinimumValidity = certDomain.ValidityMarginal

// Normalize fills defaults and drops duplicate or empty recipients.
// An explicit MinimumValidity is kept, ValidityUnknown included.
func (r Request) Normalize(now time.Time) Request {
	if r.MinimumValidity == nil {
		minimum := DefaultMinimumValidity
		r.MinimumValidity = &minimum
	}
	if r.Now.IsZero() {
		r.Now = now
	}

	seen := make(map[string]bool, len(r.Recipients))
	recipients := make([]string, 0, len(r.Recipients))
	for _, recipient := range r.Recipients {
		key := NormalizeAddress(recipient)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		recipients = append(recipients, recipient)
	}
	r.Recipients = recipients
	return r
}

// Minimum returns the least user ID validity a selected key needs.
func (r Request) Minimum() certDomain.Validity {
	if r.MinimumValidity == nil {
		return DefaultMinimumValidity
	}
	return *r.MinimumValidity
}

// Validate checks that the request names something to do.
func (r Request) Validate() error {
	if !r.Sign && !r.Encrypt {
		return errors.Wrap(ErrInvalidRequest, "neither signing nor encryption requested")
	}
	if r.Sign && NormalizeAddress(r.Sender) == "" {
		return errors.Wrap(ErrInvalidRequest, "signing requires a sender")
	}
	if r.Encrypt && len(r.Recipients) == 0 && NormalizeAddress(r.Sender) == "" {
		return errors.Wrap(ErrInvalidRequest, "encryption requires recipients")
	}
	for _, p := range []certDomain.Protocol{r.ForceProtocol, r.PresetProtocol} {
		if p != certDomain.UnknownProtocol && p != certDomain.OpenPGP && p != certDomain.CMS {
			return certDomain.ErrUnknownProtocol
		}
	}
	return nil
}

// Protocols returns the protocols the request may use, in preference order.
func (r Request) Protocols() []certDomain.Protocol {
	switch {
	case r.ForceProtocol != certDomain.UnknownProtocol:
		return []certDomain.Protocol{r.ForceProtocol}
	case r.PresetProtocol != certDomain.UnknownProtocol:
		return []certDomain.Protocol{r.PresetProtocol, r.PresetProtocol.Other()}
	default:
		return certDomain.Protocols
	}
}

// EncryptionAddresses returns the recipients plus the sender (encrypt to
// self), without duplicates.
func (r Request) EncryptionAddresses() []string {
	addresses := append([]string(nil), r.Recipients...)
	if NormalizeAddress(r.Sender) == "" {
		return addresses
	}
	sender := NormalizeAddress(r.Sender)
	for _, a := range addresses {
		if NormalizeAddress(a) == sender {
			return addresses
		}
	}
	return append(addresses, r.Sender)
}

// NormalizeAddress returns the lower-cased mailbox of an address, or the
// trimmed lower-cased input when it is not an email (group names).
func NormalizeAddress(address string) string {
	if email := certDomain.EmailOrEmpty(address); email != "" {
		return email
	}
	return groupsDomain.NormalizeName(address)
}
