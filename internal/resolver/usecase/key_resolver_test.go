package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/keycache/service"
	"github.com/allisson/keycache/internal/resolver/domain"
	resolverService "github.com/allisson/keycache/internal/resolver/service"
)

func fpr(n int) string {
	return fmt.Sprintf("%040X", n)
}

func testCert(n int, protocol certDomain.Protocol, email string, validity certDomain.Validity, secret bool) *certDomain.Certificate {
	return &certDomain.Certificate{
		Protocol:    protocol,
		Fingerprint: fpr(n),
		CanSign:     true,
		CanEncrypt:  true,
		HasSecret:   secret,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UserIDs:     []certDomain.UserID{{ID: email, Email: email, Validity: validity}},
	}
}

func newTestStore(certs ...*certDomain.Certificate) *service.Store {
	store := service.NewStore()
	store.ReplaceAll(certs, nil, 0)
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func await(t *testing.T, ch <-chan domain.Outcome) domain.Outcome {
	t.Helper()
	select {
	case outcome, ok := <-ch:
		require.True(t, ok, "outcome channel closed without a value")
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("resolution did not finish")
		return domain.Outcome{}
	}
}

type recordingApprover struct {
	proposals []domain.Proposal
	decide    func(p domain.Proposal) (domain.Decision, error)
}

func (r *recordingApprover) Approve(_ context.Context, p domain.Proposal) (domain.Decision, error) {
	r.proposals = append(r.proposals, p)
	return r.decide(p)
}

func TestKeyResolver_Automatic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(
		testCert(1, certDomain.OpenPGP, "me@example.net", certDomain.ValidityUltimate, true),
		testCert(2, certDomain.CMS, "me@example.net", certDomain.ValidityUltimate, true),
		testCert(3, certDomain.OpenPGP, "you@example.net", certDomain.ValidityFull, false),
	)
	uc := NewResolverUseCase(store, resolverService.NewPolicyEngine(), testLogger())

	resolver := uc.NewKeyResolver(true, true, nil)
	resolver.SetSender("me@example.net")
	resolver.SetRecipients([]string{"you@example.net"})

	outcome := await(t, resolver.Start(ctx, false))
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Success)
	assert.False(t, outcome.SendUnencrypted)

	signing := resolver.SigningKeys()
	require.Len(t, signing, 1)
	assert.Equal(t, fpr(1), signing[certDomain.OpenPGP][0].Fingerprint)
	encryption := resolver.EncryptionKeys()
	assert.Equal(t, fpr(3), encryption[certDomain.OpenPGP]["you@example.net"][0].Fingerprint)
	assert.Equal(t, fpr(1), encryption[certDomain.OpenPGP]["me@example.net"][0].Fingerprint)

	t.Run("accessors return copies", func(t *testing.T) {
		resolver.SigningKeys()[certDomain.OpenPGP][0].Fingerprint = "changed"
		assert.Equal(t, fpr(1), resolver.SigningKeys()[certDomain.OpenPGP][0].Fingerprint)
	})

	t.Run("second start fails", func(t *testing.T) {
		outcome := await(t, resolver.Start(ctx, false))
		assert.ErrorIs(t, outcome.Err, domain.ErrAlreadyStarted)
	})
}

func TestKeyResolver_Approval(t *testing.T) {
	ctx := context.Background()

	ambiguousStore := func() *service.Store {
		return newTestStore(
			testCert(1, certDomain.OpenPGP, "me@example.net", certDomain.ValidityUltimate, true),
			testCert(2, certDomain.OpenPGP, "twin@example.net", certDomain.ValidityFull, false),
			testCert(3, certDomain.OpenPGP, "twin@example.net", certDomain.ValidityFull, false),
		)
	}
	newResolver := func(store *service.Store, approver Approver) *KeyResolver {
		r := NewKeyResolver(store, resolverService.NewPolicyEngine(), true, false)
		r.SetApprover(approver)
		r.SetSender("me@example.net")
		r.SetRecipients([]string{"twin@example.net"})
		r.SetForcedProtocol(certDomain.OpenPGP)
		return r
	}

	t.Run("incomplete without approver fails", func(t *testing.T) {
		resolver := newResolver(ambiguousStore(), nil)

		outcome := await(t, resolver.Start(ctx, false))
		assert.False(t, outcome.Success)
		assert.ErrorIs(t, outcome.Err, domain.ErrNoApprover)
		assert.ErrorIs(t, outcome.Err, domain.ErrAmbiguous)
		assert.Empty(t, resolver.SigningKeys())
		assert.Empty(t, resolver.EncryptionKeys())
		assert.Nil(t, resolver.Result())
	})

	t.Run("approver picks a candidate", func(t *testing.T) {
		approver := &recordingApprover{decide: func(p domain.Proposal) (domain.Decision, error) {
			keys := p.Result.EncryptionKeys
			byAddress := keys[certDomain.OpenPGP]
			if len(p.Result.Unresolved) != 1 {
				return domain.Decision{Action: domain.DecisionCancel}, nil
			}
			byAddress["twin@example.net"] = []*certDomain.Certificate{p.Result.Unresolved[0].Candidates[1].Certificate}
			return domain.Decision{Action: domain.DecisionAccept, EncryptionKeys: keys}, nil
		}}
		resolver := newResolver(ambiguousStore(), approver)

		outcome := await(t, resolver.Start(ctx, false))
		require.NoError(t, outcome.Err)
		assert.True(t, outcome.Success)
		require.Len(t, approver.proposals, 1)
		assert.Equal(t, domain.ReasonAmbiguous, approver.proposals[0].Result.Unresolved[0].Reason)

		twin := resolver.EncryptionKeys()[certDomain.OpenPGP]["twin@example.net"]
		require.Len(t, twin, 1)
		assert.Contains(t, []string{fpr(2), fpr(3)}, twin[0].Fingerprint)
		assert.Empty(t, resolver.Result().Unresolved)
	})

	t.Run("accepting an incomplete proposal fails", func(t *testing.T) {
		approver := &recordingApprover{decide: func(domain.Proposal) (domain.Decision, error) {
			return domain.Decision{Action: domain.DecisionAccept}, nil
		}}
		resolver := newResolver(ambiguousStore(), approver)

		outcome := await(t, resolver.Start(ctx, false))
		assert.False(t, outcome.Success)
		assert.ErrorIs(t, outcome.Err, domain.ErrPolicyViolation)
	})

	t.Run("cancel", func(t *testing.T) {
		approver := &recordingApprover{decide: func(domain.Proposal) (domain.Decision, error) {
			return domain.Decision{Action: domain.DecisionCancel}, nil
		}}
		resolver := newResolver(ambiguousStore(), approver)

		outcome := await(t, resolver.Start(ctx, false))
		assert.ErrorIs(t, outcome.Err, domain.ErrCanceled)
		assert.Nil(t, resolver.Result())
	})

	t.Run("send unencrypted when allowed", func(t *testing.T) {
		approver := &recordingApprover{decide: func(domain.Proposal) (domain.Decision, error) {
			return domain.Decision{Action: domain.DecisionSendUnencrypted}, nil
		}}
		resolver := newResolver(ambiguousStore(), approver)
		resolver.SetAllowUnencrypted(true)

		outcome := await(t, resolver.Start(ctx, false))
		require.NoError(t, outcome.Err)
		assert.True(t, outcome.Success)
		assert.True(t, outcome.SendUnencrypted)
		assert.Empty(t, resolver.EncryptionKeys())
	})

	t.Run("send unencrypted when not allowed", func(t *testing.T) {
		approver := &recordingApprover{decide: func(domain.Proposal) (domain.Decision, error) {
			return domain.Decision{Action: domain.DecisionSendUnencrypted}, nil
		}}
		resolver := newResolver(ambiguousStore(), approver)

		outcome := await(t, resolver.Start(ctx, false))
		assert.False(t, outcome.Success)
		assert.False(t, outcome.SendUnencrypted)
		assert.ErrorIs(t, outcome.Err, domain.ErrPolicyViolation)
	})

	t.Run("approval shown for complete result", func(t *testing.T) {
		store := newTestStore(
			testCert(1, certDomain.OpenPGP, "me@example.net", certDomain.ValidityUltimate, true),
			testCert(2, certDomain.OpenPGP, "twin@example.net", certDomain.ValidityFull, false),
		)
		approver := &recordingApprover{decide: func(domain.Proposal) (domain.Decision, error) {
			return domain.Decision{Action: domain.DecisionAccept}, nil
		}}
		resolver := newResolver(store, approver)

		outcome := await(t, resolver.Start(ctx, true))
		require.NoError(t, outcome.Err)
		assert.True(t, outcome.Success)
		assert.Len(t, approver.proposals, 1)
	})

	t.Run("forced protocol without keys", func(t *testing.T) {
		resolver := newResolver(ambiguousStore(), nil)
		resolver.SetForcedProtocol(certDomain.CMS)

		outcome := await(t, resolver.Start(ctx, false))
		assert.ErrorIs(t, outcome.Err, domain.ErrPolicyViolation)
	})
}

func TestKeyResolver_InvalidRequest(t *testing.T) {
	resolver := NewKeyResolver(newTestStore(), resolverService.NewPolicyEngine(), false, true)

	outcome := await(t, resolver.Start(context.Background(), false))
	assert.ErrorIs(t, outcome.Err, domain.ErrInvalidRequest)
}

func TestKeyResolver_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := NewKeyResolver(newTestStore(), resolverService.NewPolicyEngine(), true, false)
	resolver.SetRecipients([]string{"you@example.net"})

	outcome := await(t, resolver.Start(ctx, false))
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestResolverUseCase_Resolve(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(
		testCert(1, certDomain.OpenPGP, "x@example.net", certDomain.ValidityFull, false),
		testCert(2, certDomain.CMS, "x@example.net", certDomain.ValidityMarginal, false),
	)
	uc := NewResolverUseCase(store, resolverService.NewPolicyEngine(), testLogger())

	t.Run("scenario picks the full openpgp key", func(t *testing.T) {
		result, err := uc.Resolve(ctx, domain.Request{Recipients: []string{"x@example.net"}, Encrypt: true})
		require.NoError(t, err)
		assert.True(t, result.Complete)
		assert.Equal(t, certDomain.OpenPGP, result.Protocol)
		assert.Equal(t, fpr(1), result.EncryptionKeys[certDomain.OpenPGP]["x@example.net"][0].Fingerprint)
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := uc.Resolve(ctx, domain.Request{Sign: true})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := uc.Resolve(canceled, domain.Request{Recipients: []string{"x@example.net"}, Encrypt: true})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
