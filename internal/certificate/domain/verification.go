package domain

import (
	"time"
)

// Signature is one signature of a verification result as reported by the engine.
// Fingerprint holds whatever the engine reported: a primary or subkey
// fingerprint, or only a (long or short) key ID.
type Signature struct {
	Fingerprint string
	Status      string
	Summary     string
	CreatedAt   time.Time
}

// VerificationResult is the outcome of verifying a (possibly multi-) signed message.
type VerificationResult struct {
	Signatures []Signature
}

// Recipient is one recipient of an encrypted message as reported by the engine.
type Recipient struct {
	KeyID    string
	Protocol Protocol
}

// DecryptionResult is the outcome of decrypting a message.
type DecryptionResult struct {
	Recipients []Recipient
}
