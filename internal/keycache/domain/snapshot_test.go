package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

const (
	aliceFpr   = "0123456789ABCDEF0123456789ABCDEF01234567"
	aliceSubFp = "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
	bobV5Fpr   = "FEDCBA9876543210A1B2C3D4E5F60718293A4B5C6D7E8F900F1E2D3C4B5A6978"
	rootFpr    = "1111111111111111111111111111111111111111"
	interFpr   = "2222222222222222222222222222222222222222"
	leafFpr    = "3333333333333333333333333333333333333333"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func aliceCert() *certDomain.Certificate {
	return &certDomain.Certificate{
		Protocol:    certDomain.OpenPGP,
		Fingerprint: strings.ToLower(aliceFpr),
		CanSign:     true,
		CanEncrypt:  true,
		HasSecret:   true,
		UserIDs: []certDomain.UserID{
			{Name: "Alice", Email: "Alice@Example.net", Validity: certDomain.ValidityUltimate},
		},
		Subkeys: []certDomain.Subkey{
			{Fingerprint: aliceFpr, CanSign: true, CanCertify: true, HasSecret: true},
			{Fingerprint: aliceSubFp, CanEncrypt: true, CanSign: true, HasSecret: true},
		},
	}
}

func bobV5Cert() *certDomain.Certificate {
	return &certDomain.Certificate{
		Protocol:    certDomain.OpenPGP,
		Fingerprint: bobV5Fpr,
		CanEncrypt:  true,
		UserIDs: []certDomain.UserID{
			{Name: "Bob", Email: "bob@example.org", Validity: certDomain.ValidityFull},
		},
	}
}

func chain() []*certDomain.Certificate {
	return []*certDomain.Certificate{
		{Protocol: certDomain.CMS, Fingerprint: rootFpr, IsRoot: true, IssuerFingerprint: rootFpr},
		{Protocol: certDomain.CMS, Fingerprint: interFpr, IssuerFingerprint: rootFpr},
		{
			Protocol:          certDomain.CMS,
			Fingerprint:       leafFpr,
			IssuerFingerprint: interFpr,
			CanEncrypt:        true,
			UserIDs: []certDomain.UserID{
				{Email: "alice@example.net", Validity: certDomain.ValidityFull},
			},
		},
	}
}

func TestEmptySnapshot(t *testing.T) {
	s := EmptySnapshot()
	assert.False(t, s.Populated())
	assert.Zero(t, s.Generation())
	assert.Zero(t, s.Len())
	assert.Empty(t, s.FindByEmail("alice@example.net"))
}

func TestNewSnapshot_EmptyIsPopulated(t *testing.T) {
	s := NewSnapshot(1, nil, nil, now)
	assert.True(t, s.Populated())
	assert.Equal(t, uint64(1), s.Generation())
	assert.Empty(t, s.FindByEmail("anyone@example.net"))
}

func TestSnapshot_FindByFingerprint(t *testing.T) {
	s := NewSnapshot(1, []*certDomain.Certificate{aliceCert(), bobV5Cert()}, nil, now)

	t.Run("v4 any case", func(t *testing.T) {
		c, ok := s.FindByFingerprint(strings.ToLower(aliceFpr))
		require.True(t, ok)
		assert.Equal(t, aliceFpr, c.Fingerprint)
		assert.Equal(t, "89ABCDEF01234567", c.KeyID)
	})

	t.Run("v5 any case", func(t *testing.T) {
		c, ok := s.FindByFingerprint(strings.ToLower(bobV5Fpr))
		require.True(t, ok)
		assert.Equal(t, bobV5Fpr, c.Fingerprint)
		assert.Equal(t, "FEDCBA9876543210", c.KeyID)
	})

	t.Run("key id never matches a fingerprint by prefix", func(t *testing.T) {
		_, ok := s.FindByFingerprint(bobV5Fpr[:16])
		assert.False(t, ok)
		_, ok = s.FindByFingerprint(aliceFpr[24:])
		assert.False(t, ok)
	})

	t.Run("subkey fingerprint is not a primary fingerprint", func(t *testing.T) {
		_, ok := s.FindByFingerprint(aliceSubFp)
		assert.False(t, ok)
	})

	t.Run("results are copies", func(t *testing.T) {
		c, ok := s.FindByFingerprint(aliceFpr)
		require.True(t, ok)
		c.UserIDs[0].Email = "mallory@example.net"
		again, _ := s.FindByFingerprint(aliceFpr)
		assert.Equal(t, "alice@example.net", again.UserIDs[0].Email)
	})
}

func TestSnapshot_FindByKeyID(t *testing.T) {
	s := NewSnapshot(1, []*certDomain.Certificate{aliceCert(), bobV5Cert()}, nil, now)

	t.Run("v4 long key id", func(t *testing.T) {
		certs := s.FindByKeyID(aliceFpr[24:])
		require.Len(t, certs, 1)
		assert.Equal(t, aliceFpr, certs[0].Fingerprint)
	})

	t.Run("v4 short key id", func(t *testing.T) {
		certs := s.FindByKeyID(aliceFpr[32:])
		require.Len(t, certs, 1)
		assert.Equal(t, aliceFpr, certs[0].Fingerprint)
	})

	t.Run("subkey key id", func(t *testing.T) {
		certs := s.FindByKeyID(aliceSubFp[24:])
		require.Len(t, certs, 1)
		assert.Equal(t, aliceFpr, certs[0].Fingerprint)
	})

	t.Run("v5 key id is the high 64 bits", func(t *testing.T) {
		certs := s.FindByKeyID(bobV5Fpr[:16])
		require.Len(t, certs, 1)
		assert.Equal(t, bobV5Fpr, certs[0].Fingerprint)
	})

	t.Run("v4 convention on a v5 fingerprint does not match", func(t *testing.T) {
		assert.Empty(t, s.FindByKeyID(bobV5Fpr[48:]))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Empty(t, s.FindByKeyID("xyz"))
	})
}

func TestSnapshot_DuplicateFingerprintLastWins(t *testing.T) {
	first := aliceCert()
	second := aliceCert()
	second.UserIDs = []certDomain.UserID{{Email: "alice@new.example"}}

	s := NewSnapshot(1, []*certDomain.Certificate{first, second}, nil, now)

	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.FindByEmail("alice@example.net"))
	assert.Len(t, s.FindByEmail("alice@new.example"), 1)
}

func TestSnapshot_FindByEmail(t *testing.T) {
	certs := append([]*certDomain.Certificate{aliceCert(), bobV5Cert()}, chain()...)
	s := NewSnapshot(1, certs, nil, now)

	found := s.FindByEmail("Alice <ALICE@example.NET>")
	require.Len(t, found, 2)
	assert.Equal(t, certDomain.OpenPGP, found[0].Protocol)
	assert.Equal(t, certDomain.CMS, found[1].Protocol)

	assert.Empty(t, s.FindByEmail("carol@example.net"))
	assert.Empty(t, s.FindByEmail("not an address"))
}

func TestSnapshot_FindBestByEmail(t *testing.T) {
	older := aliceCert()
	older.Fingerprint = "9999999999999999999999999999999999999999"
	older.Subkeys = nil
	older.CreatedAt = now.Add(-72 * time.Hour)

	newer := aliceCert()
	newer.Fingerprint = "8888888888888888888888888888888888888888"
	newer.Subkeys = nil
	newer.CreatedAt = now.Add(-24 * time.Hour)

	marginal := aliceCert()
	marginal.Fingerprint = "7777777777777777777777777777777777777777"
	marginal.Subkeys = nil
	marginal.CreatedAt = now
	marginal.UserIDs[0].Validity = certDomain.ValidityMarginal

	s := NewSnapshot(1, []*certDomain.Certificate{older, newer, marginal}, nil, now)

	best, ok := s.FindBestByEmail("alice@example.net", certDomain.OpenPGP, certDomain.OperationEncrypt, now)
	require.True(t, ok)
	assert.Equal(t, newer.Fingerprint, best.Fingerprint)

	_, ok = s.FindBestByEmail("alice@example.net", certDomain.CMS, certDomain.OperationEncrypt, now)
	assert.False(t, ok)
}

func TestSnapshot_FindSigner(t *testing.T) {
	s := NewSnapshot(1, []*certDomain.Certificate{aliceCert(), bobV5Cert()}, nil, now)

	tests := []struct {
		name    string
		id      string
		wantFpr string
	}{
		{name: "primary fingerprint", id: aliceFpr, wantFpr: aliceFpr},
		{name: "signing subkey fingerprint", id: strings.ToLower(aliceSubFp), wantFpr: aliceFpr},
		{name: "signing subkey key id", id: aliceSubFp[24:], wantFpr: aliceFpr},
		{name: "v5 primary", id: bobV5Fpr, wantFpr: bobV5Fpr},
		{name: "v5 key id", id: bobV5Fpr[:16], wantFpr: bobV5Fpr},
		{name: "unknown", id: "0000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := s.FindSigner(certDomain.Signature{Fingerprint: tt.id})
			if tt.wantFpr == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantFpr, c.Fingerprint)
		})
	}
}

func TestSnapshot_FindSigner_AmbiguousKeyID(t *testing.T) {
	a := &certDomain.Certificate{Protocol: certDomain.OpenPGP, Fingerprint: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", KeyID: "1234123412341234"}
	b := &certDomain.Certificate{Protocol: certDomain.OpenPGP, Fingerprint: "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", KeyID: "1234123412341234"}
	s := NewSnapshot(1, []*certDomain.Certificate{a, b}, nil, now)

	_, ok := s.FindSigner(certDomain.Signature{Fingerprint: "1234123412341234"})
	assert.False(t, ok)
	assert.Len(t, s.FindByKeyID("1234123412341234"), 2)
}

func TestSnapshot_FindSigners(t *testing.T) {
	s := NewSnapshot(1, []*certDomain.Certificate{aliceCert(), bobV5Cert()}, nil, now)

	signers := s.FindSigners(certDomain.VerificationResult{
		Signatures: []certDomain.Signature{
			{Fingerprint: aliceSubFp},
			{Fingerprint: "DEADBEEFDEADBEEF"},
			{Fingerprint: bobV5Fpr},
			{Fingerprint: aliceFpr},
		},
	})

	require.Len(t, signers, 2)
	assert.Equal(t, aliceFpr, signers[0].Fingerprint)
	assert.Equal(t, bobV5Fpr, signers[1].Fingerprint)
}

func TestSnapshot_FindRecipients(t *testing.T) {
	s := NewSnapshot(1, append([]*certDomain.Certificate{aliceCert()}, chain()...), nil, now)

	recipients := s.FindRecipients(certDomain.DecryptionResult{
		Recipients: []certDomain.Recipient{
			{KeyID: aliceSubFp[24:], Protocol: certDomain.OpenPGP},
			{KeyID: leafFpr[24:], Protocol: certDomain.OpenPGP},
			{KeyID: leafFpr[24:]},
			{KeyID: "0000000000000000"},
		},
	})

	require.Len(t, recipients, 2)
	assert.Equal(t, aliceFpr, recipients[0].Fingerprint)
	assert.Equal(t, leafFpr, recipients[1].Fingerprint)
}

func TestSnapshot_ChainOfTrust(t *testing.T) {
	s := NewSnapshot(1, chain(), nil, now)
	leaf, ok := s.FindByFingerprint(leafFpr)
	require.True(t, ok)
	root, ok := s.FindByFingerprint(rootFpr)
	require.True(t, ok)

	t.Run("direct issuer", func(t *testing.T) {
		issuers := s.FindIssuers(leaf, false)
		require.Len(t, issuers, 1)
		assert.Equal(t, interFpr, issuers[0].Fingerprint)
	})

	t.Run("issuers up to the root", func(t *testing.T) {
		issuers := s.FindIssuers(leaf, true)
		require.Len(t, issuers, 2)
		assert.Equal(t, rootFpr, issuers[1].Fingerprint)
	})

	t.Run("root has no issuers", func(t *testing.T) {
		assert.Empty(t, s.FindIssuers(root, true))
	})

	t.Run("subjects", func(t *testing.T) {
		assert.Len(t, s.FindSubjects(root, false), 1)
		assert.Len(t, s.FindSubjects(root, true), 2)
		assert.Empty(t, s.FindSubjects(leaf, true))
	})
}

func TestSnapshot_WithGroups(t *testing.T) {
	group := &groupsDomain.KeyGroup{Name: "ops", Fingerprints: []string{aliceFpr}}

	t.Run("keeps certificates and populated state", func(t *testing.T) {
		base := NewSnapshot(1, append([]*certDomain.Certificate{aliceCert()}, chain()...), nil, now)
		next := base.WithGroups(2, now, []*groupsDomain.KeyGroup{group})

		assert.Equal(t, uint64(2), next.Generation())
		assert.True(t, next.Populated())
		assert.Equal(t, base.Len(), next.Len())
		assert.Len(t, next.GroupMembers("ops"), 1)
		assert.Empty(t, base.Groups(), "older snapshot must not change")
	})

	t.Run("empty snapshot stays unpopulated", func(t *testing.T) {
		next := EmptySnapshot().WithGroups(1, now, []*groupsDomain.KeyGroup{group})

		assert.False(t, next.Populated())
		assert.Equal(t, uint64(1), next.Generation())
		_, ok := next.Group("ops")
		assert.True(t, ok)
	})
}

func TestSnapshot_Groups(t *testing.T) {
	group := &groupsDomain.KeyGroup{
		ID:           uuid.Must(uuid.NewV7()),
		Name:         "Security-Team",
		Fingerprints: []string{aliceFpr, leafFpr, "4444444444444444444444444444444444444444"},
	}
	s := NewSnapshot(1, append([]*certDomain.Certificate{aliceCert()}, chain()...),
		[]*groupsDomain.KeyGroup{group}, now)

	g, ok := s.Group("security-team")
	require.True(t, ok)
	assert.Equal(t, "Security-Team", g.Name)

	members := s.GroupMembers("SECURITY-TEAM")
	require.Len(t, members, 2)

	assert.Len(t, s.Groups(), 1)

	next := s.WithGroups(2, now, nil)
	_, ok = next.Group("security-team")
	assert.False(t, ok)
	assert.Equal(t, s.Len(), next.Len())
}

func TestSnapshot_Certificates(t *testing.T) {
	s := NewSnapshot(1, append([]*certDomain.Certificate{aliceCert(), bobV5Cert()}, chain()...), nil, now)

	assert.Len(t, s.Certificates(Filter{}), 5)
	assert.Len(t, s.Certificates(Filter{Protocol: certDomain.CMS}), 3)
	assert.Len(t, s.Certificates(Filter{Email: "alice@example.net"}), 2)

	secret := s.SecretKeys()
	require.Len(t, secret, 1)
	assert.Equal(t, aliceFpr, secret[0].Fingerprint)
}
