package domain

import (
	"strings"
)

const (
	// V4FingerprintLength is the hex length of a legacy (SHA-1, V4) fingerprint.
	V4FingerprintLength = 40
	// V5FingerprintLength is the hex length of a V5/V6 (SHA-256) fingerprint.
	V5FingerprintLength = 64
	// KeyIDLength is the hex length of a long key ID.
	KeyIDLength = 16
	// ShortKeyIDLength is the hex length of a short key ID.
	ShortKeyIDLength = 8
)

// normalizeHex upper-cases s and strips whitespace, colons and an optional 0x prefix.
func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == ':' || r == '\t':
			continue
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}

// NormalizeFingerprint returns the canonical (upper-case, unseparated) form of a
// fingerprint. It fails with ErrInvalidFingerprint unless the input is exactly
// 40 or 64 hex digits after normalization.
func NormalizeFingerprint(fpr string) (string, error) {
	n := normalizeHex(fpr)
	if !IsFingerprint(n) {
		return "", ErrInvalidFingerprint
	}
	return n, nil
}

// IsFingerprint reports whether s is a normalized V4 or V5 fingerprint.
func IsFingerprint(s string) bool {
	return (len(s) == V4FingerprintLength || len(s) == V5FingerprintLength) && isHex(s)
}

// IsKeyID reports whether s is a normalized long key ID.
func IsKeyID(s string) bool {
	return len(s) == KeyIDLength && isHex(s)
}

// IsShortKeyID reports whether s is a normalized short key ID.
func IsShortKeyID(s string) bool {
	return len(s) == ShortKeyIDLength && isHex(s)
}

// NormalizeKeyID returns the canonical form of a long or short key ID.
func NormalizeKeyID(id string) (string, error) {
	n := normalizeHex(id)
	if !IsKeyID(n) && !IsShortKeyID(n) {
		return "", ErrInvalidKeyID
	}
	return n, nil
}

// NormalizeIdentifier normalizes a fingerprint or key ID without validating its length.
func NormalizeIdentifier(id string) string {
	return normalizeHex(id)
}

// KeyIDFromFingerprint derives the long key ID of a normalized fingerprint.
//
// V4 key IDs are the low 64 bits of the fingerprint (last 16 hex digits) while
// V5 and V6 key IDs are the high 64 bits (first 16 hex digits). An X.509
// fingerprint follows the V4 convention, matching what gpgsm reports.
func KeyIDFromFingerprint(fpr string) string {
	switch len(fpr) {
	case V4FingerprintLength:
		return fpr[V4FingerprintLength-KeyIDLength:]
	case V5FingerprintLength:
		return fpr[:KeyIDLength]
	default:
		return ""
	}
}

// ShortKeyID returns the short (8 hex digit) form of a long key ID.
func ShortKeyID(keyID string) string {
	if len(keyID) != KeyIDLength {
		return ""
	}
	return keyID[KeyIDLength-ShortKeyIDLength:]
}
