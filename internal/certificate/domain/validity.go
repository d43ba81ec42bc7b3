package domain

import (
	"strings"
)

// Validity is the trust level assigned to a user ID (or the owner trust of a key).
// Values are ordered: a greater value is a stronger binding.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityUndefined
	ValidityNever
	ValidityMarginal
	ValidityFull
	ValidityUltimate
)

var validityNames = map[Validity]string{
	ValidityUnknown:   "unknown",
	ValidityUndefined: "undefined",
	ValidityNever:     "never",
	ValidityMarginal:  "marginal",
	ValidityFull:      "full",
	ValidityUltimate:  "ultimate",
}

// String returns the lower-case name of the validity level.
func (v Validity) String() string {
	if name, ok := validityNames[v]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (v Validity) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Validity) UnmarshalText(text []byte) error {
	parsed, err := ParseValidity(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// AtLeast reports whether v is at least as strong as min.
func (v Validity) AtLeast(min Validity) bool {
	return v >= min
}

// ParseValidity converts a validity name into a Validity.
func ParseValidity(s string) (Validity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for v, n := range validityNames {
		if n == name {
			return v, nil
		}
	}
	return ValidityUnknown, ErrInvalidValidity
}

// ValidityFromColonField maps the validity letter of a GnuPG colon listing.
// Letters that describe key state rather than trust (r, e, d, i) map to Never
// since such a binding can never be relied upon.
func ValidityFromColonField(field string) Validity {
	if field == "" {
		return ValidityUnknown
	}
	switch field[0] {
	case 'q':
		return ValidityUndefined
	case 'n', 'r', 'e', 'd', 'i':
		return ValidityNever
	case 'm':
		return ValidityMarginal
	case 'f':
		return ValidityFull
	case 'u':
		return ValidityUltimate
	default:
		return ValidityUnknown
	}
}
