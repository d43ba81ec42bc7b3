package domain

import (
	"time"
)

// Operation is a cryptographic use a key can be selected for.
type Operation int

const (
	// OperationSign selects keys able to create signatures.
	OperationSign Operation = iota + 1
	// OperationEncrypt selects keys able to encrypt to their owner.
	OperationEncrypt
)

// String returns the lower-case name of the operation.
func (o Operation) String() string {
	switch o {
	case OperationSign:
		return "sign"
	case OperationEncrypt:
		return "encrypt"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UserID binds a name and (optionally) an email address to a certificate.
type UserID struct {
	ID               string   // Raw user ID (OpenPGP) or subject DN / alt name (X.509)
	Name             string   // Display name, may be empty
	Email            string   // Normalized email, empty when the UID carries none
	Comment          string   // OpenPGP comment part, may be empty
	Validity         Validity // Per-UID validity computed by the engine
	Revoked          bool
	Invalid          bool
	OwnerFingerprint string // Fingerprint of the owning certificate (non-owning back-reference)
}

// Subkey is a (sub)key of a certificate with its own capabilities and state.
type Subkey struct {
	Fingerprint     string
	KeyID           string
	Keygrip         string // GnuPG keygrip, empty when the engine does not report one
	CanSign         bool
	CanEncrypt      bool
	CanCertify      bool
	CanAuthenticate bool
	HasSecret       bool
	Revoked         bool
	Expired         bool
	Disabled        bool
	Invalid         bool
	CreatedAt       time.Time
	ExpiresAt       time.Time // Zero when the subkey does not expire
}

// IsBad reports whether the subkey can never be used for new operations.
func (s Subkey) IsBad() bool {
	return s.Revoked || s.Expired || s.Disabled || s.Invalid
}

// ExpiredAt reports whether the subkey is expired at the given time.
func (s Subkey) ExpiredAt(now time.Time) bool {
	return s.Expired || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// Can reports whether the subkey carries the capability required by op.
func (s Subkey) Can(op Operation) bool {
	switch op {
	case OperationSign:
		return s.CanSign
	case OperationEncrypt:
		return s.CanEncrypt
	default:
		return false
	}
}

// Certificate is an OpenPGP key or an X.509 certificate as listed by the engine.
type Certificate struct {
	Protocol          Protocol
	Fingerprint       string // Normalized primary fingerprint (40 or 64 hex digits)
	KeyID             string // Long key ID of the primary key
	Keygrip           string // GnuPG keygrip of the primary key, empty when unknown
	IssuerFingerprint string // Fingerprint of the issuing certificate (X.509), empty for roots
	IssuerName        string
	SubjectName       string
	UserIDs           []UserID
	Subkeys           []Subkey
	OwnerTrust        Validity

	Revoked  bool
	Expired  bool
	Disabled bool
	Invalid  bool

	// Capability flags describe the certificate as a whole (any usable subkey).
	CanSign         bool
	CanEncrypt      bool
	CanCertify      bool
	CanAuthenticate bool
	HasSecret       bool
	IsRoot          bool

	CreatedAt time.Time
	ExpiresAt time.Time // Zero when the certificate does not expire
	Origin    string    // Name of the engine that listed the certificate
}

// Clone returns a deep copy of the certificate.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	clone := *c
	clone.UserIDs = append([]UserID(nil), c.UserIDs...)
	clone.Subkeys = append([]Subkey(nil), c.Subkeys...)
	return &clone
}

// IsBad reports whether the certificate is revoked, expired, disabled or invalid.
func (c *Certificate) IsBad() bool {
	return c.Revoked || c.Expired || c.Disabled || c.Invalid
}

// ExpiredAt reports whether the certificate is expired at the given time.
func (c *Certificate) ExpiredAt(now time.Time) bool {
	return c.Expired || (!c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt))
}

// Can reports whether the certificate as a whole has the capability required by op.
func (c *Certificate) Can(op Operation) bool {
	switch op {
	case OperationSign:
		return c.CanSign
	case OperationEncrypt:
		return c.CanEncrypt
	default:
		return false
	}
}

// UsableFor reports whether the certificate may be selected for a new operation.
// Revoked, expired, disabled and invalid certificates are never usable, even if
// they remain useful to identify the signer of an old message.
func (c *Certificate) UsableFor(op Operation, now time.Time) bool {
	if c.IsBad() || c.ExpiredAt(now) || !c.Can(op) {
		return false
	}
	if op == OperationSign && !c.HasSecret {
		return false
	}
	if len(c.Subkeys) == 0 {
		return true
	}
	_, ok := c.LatestSubkeyFor(op, now)
	return ok
}

// Emails returns the distinct email addresses of all user IDs.
func (c *Certificate) Emails() []string {
	seen := make(map[string]bool, len(c.UserIDs))
	emails := make([]string, 0, len(c.UserIDs))
	for _, uid := range c.UserIDs {
		if uid.Email == "" || seen[uid.Email] {
			continue
		}
		seen[uid.Email] = true
		emails = append(emails, uid.Email)
	}
	return emails
}

// HasEmail reports whether any user ID carries the (normalized) email.
func (c *Certificate) HasEmail(email string) bool {
	for _, uid := range c.UserIDs {
		if uid.Email == email {
			return true
		}
	}
	return false
}

// ValidityFor returns the highest validity of the non-revoked user IDs matching
// email. An empty email considers every user ID.
func (c *Certificate) ValidityFor(email string) Validity {
	best := ValidityUnknown
	for _, uid := range c.UserIDs {
		if uid.Revoked || uid.Invalid {
			continue
		}
		if email != "" && uid.Email != email {
			continue
		}
		if uid.Validity > best {
			best = uid.Validity
		}
	}
	return best
}

// LatestSubkeyFor returns the most recently created subkey that is neither
// revoked nor expired and carries the capability required by op.
func (c *Certificate) LatestSubkeyFor(op Operation, now time.Time) (Subkey, bool) {
	var (
		latest Subkey
		found  bool
	)
	for _, sk := range c.Subkeys {
		if sk.IsBad() || sk.ExpiredAt(now) || !sk.Can(op) {
			continue
		}
		if op == OperationSign && !sk.HasSecret && anySubkeyHasSecret(c.Subkeys) {
			continue
		}
		if !found || sk.CreatedAt.After(latest.CreatedAt) {
			latest = sk
			found = true
		}
	}
	return latest, found
}

// RelevantCreationTime is the creation time used to break ties between
// certificates: that of the latest usable subkey for op, or of the certificate
// itself when it has no subkeys (X.509).
func (c *Certificate) RelevantCreationTime(op Operation, now time.Time) time.Time {
	if sk, ok := c.LatestSubkeyFor(op, now); ok {
		return sk.CreatedAt
	}
	return c.CreatedAt
}

// KeyIDs returns the long key IDs of the primary key and all subkeys.
func (c *Certificate) KeyIDs() []string {
	ids := make([]string, 0, len(c.Subkeys)+1)
	if c.KeyID != "" {
		ids = append(ids, c.KeyID)
	}
	for _, sk := range c.Subkeys {
		if sk.KeyID != "" && sk.KeyID != c.KeyID {
			ids = append(ids, sk.KeyID)
		}
	}
	return ids
}

// PrimaryUserID returns the first user ID, or an empty one.
func (c *Certificate) PrimaryUserID() UserID {
	if len(c.UserIDs) == 0 {
		return UserID{}
	}
	return c.UserIDs[0]
}

func anySubkeyHasSecret(subkeys []Subkey) bool {
	for _, sk := range subkeys {
		if sk.HasSecret {
			return true
		}
	}
	return false
}
