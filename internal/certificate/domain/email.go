package domain

import (
	"net/mail"
	"strings"
)

// NormalizeEmail extracts the mailbox of an address and returns it lower-cased.
//
// Both bare addresses ("alice@example.net") and display forms
// ("Alice <Alice@Example.NET>") are accepted. Local part and domain are compared
// case-insensitively, which is what GnuPG does when matching user IDs.
func NormalizeEmail(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidEmail
	}

	if strings.ContainsAny(address, "<>") || strings.Contains(address, " ") {
		parsed, err := mail.ParseAddress(address)
		if err != nil {
			return "", ErrInvalidEmail
		}
		address = parsed.Address
	}

	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(address), nil
}

// EmailOrEmpty normalizes address and returns "" when it is not a mailbox.
func EmailOrEmpty(address string) string {
	email, err := NormalizeEmail(address)
	if err != nil {
		return ""
	}
	return email
}
