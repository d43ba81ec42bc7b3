// Package domain defines the certificate data model shared by the key cache,
// the key-listing engines and the key resolver.
//
// A Certificate is either an OpenPGP key or an X.509 (S/MIME, "CMS") certificate.
// Certificates are plain values: the cache hands out clones so that callers keep
// a consistent view even while the cache is being rebuilt.
package domain

import (
	"strings"
)

// Protocol identifies the certificate ecosystem a certificate belongs to.
type Protocol int

const (
	// UnknownProtocol is the zero value and never appears on a listed certificate.
	UnknownProtocol Protocol = iota
	// OpenPGP covers keys managed by gpg.
	OpenPGP
	// CMS covers X.509 certificates managed by gpgsm (S/MIME).
	CMS
)

// Protocols lists every supported protocol in preference order.
var Protocols = []Protocol{OpenPGP, CMS}

// String returns the canonical lower-case name of the protocol.
func (p Protocol) String() string {
	switch p {
	case OpenPGP:
		return "openpgp"
	case CMS:
		return "cms"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Other returns the protocol that is not p.
func (p Protocol) Other() Protocol {
	switch p {
	case OpenPGP:
		return CMS
	case CMS:
		return OpenPGP
	default:
		return UnknownProtocol
	}
}

// ParseProtocol converts a protocol name into a Protocol.
// "smime", "s/mime" and "x509" are accepted as aliases of CMS, "pgp" and "gpg" of OpenPGP.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openpgp", "pgp", "gpg":
		return OpenPGP, nil
	case "cms", "smime", "s/mime", "x509", "gpgsm":
		return CMS, nil
	default:
		return UnknownProtocol, ErrUnknownProtocol
	}
}

// ParseProtocols parses a list of protocol names. An empty list yields all protocols.
func ParseProtocols(names []string) ([]Protocol, error) {
	if len(names) == 0 {
		return append([]Protocol(nil), Protocols...), nil
	}

	seen := make(map[Protocol]bool, len(names))
	protocols := make([]Protocol, 0, len(names))
	for _, name := range names {
		p, err := ParseProtocol(name)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			protocols = append(protocols, p)
		}
	}
	return protocols, nil
}
