package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailValidation(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		shouldErr bool
	}{
		{
			name:      "valid email",
			email:     "user@example.com",
			shouldErr: false,
		},
		{
			name:      "valid email with subdomain",
			email:     "user@mail.example.com",
			shouldErr: false,
		},
		{
			name:      "valid email with plus",
			email:     "user+tag@example.com",
			shouldErr: false,
		},
		{
			name:      "valid email with dots",
			email:     "first.last@example.com",
			shouldErr: false,
		},
		{
			name:      "invalid - no @",
			email:     "userexample.com",
			shouldErr: true,
		},
		{
			name:      "invalid - no domain",
			email:     "user@",
			shouldErr: true,
		},
		{
			name:      "invalid - no local part",
			email:     "@example.com",
			shouldErr: true,
		},
		{
			name:      "invalid - no TLD",
			email:     "user@example",
			shouldErr: true,
		},
		{
			name:      "invalid - spaces",
			email:     "user @example.com",
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Email.Validate(tt.email)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNoWhitespace(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{
			name:      "no whitespace",
			input:     "validstring",
			shouldErr: false,
		},
		{
			name:      "leading whitespace",
			input:     " validstring",
			shouldErr: true,
		},
		{
			name:      "trailing whitespace",
			input:     "validstring ",
			shouldErr: true,
		},
		{
			name:      "both leading and trailing",
			input:     " validstring ",
			shouldErr: true,
		},
		{
			name:      "internal spaces allowed",
			input:     "valid string",
			shouldErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NoWhitespace.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotBlank(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{
			name:      "valid string",
			input:     "validstring",
			shouldErr: false,
		},
		{
			name:      "only spaces",
			input:     "   ",
			shouldErr: true,
		},
		{
			name:      "only tabs",
			input:     "\t\t",
			shouldErr: true,
		},
		{
			name:      "only newlines",
			input:     "\n\n",
			shouldErr: true,
		},
		{
			name:      "mixed whitespace",
			input:     " \t\n ",
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NotBlank.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWrapValidationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error returns nil",
			err:      nil,
			expected: false,
		},
		{
			name:     "wraps validation error",
			err:      assert.AnError,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapValidationError(tt.err)
			if tt.expected {
				assert.Error(t, result)
				assert.Contains(t, result.Error(), "invalid input")
			} else {
				assert.NoError(t, result)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "v4 fingerprint", input: "0123456789ABCDEF0123456789ABCDEF01234567"},
		{name: "lower case with spaces", input: "0123 4567 89ab cdef 0123  4567 89ab cdef 0123 4567"},
		{name: "v5 fingerprint", input: strings.Repeat("AB", 32)},
		{name: "key id", input: "89ABCDEF01234567", shouldErr: true},
		{name: "not hex", input: strings.Repeat("Z", 40), shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Fingerprint.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyIdentifier(t *testing.T) {
	assert.NoError(t, KeyIdentifier.Validate("0123456789ABCDEF0123456789ABCDEF01234567"))
	assert.NoError(t, KeyIdentifier.Validate("0x89abcdef01234567"))
	assert.NoError(t, KeyIdentifier.Validate("01234567"))
	assert.Error(t, KeyIdentifier.Validate("0123"))
	assert.Error(t, KeyIdentifier.Validate("alice@example.net"))
}

func TestProtocolAndValidity(t *testing.T) {
	assert.NoError(t, Protocol.Validate("openpgp"))
	assert.NoError(t, Protocol.Validate("smime"))
	assert.Error(t, Protocol.Validate("pkcs11"))

	assert.NoError(t, Validity.Validate("marginal"))
	assert.NoError(t, Validity.Validate("Full"))
	assert.Error(t, Validity.Validate("trusted"))
}
