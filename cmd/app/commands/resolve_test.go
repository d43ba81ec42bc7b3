package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/service"
	keycacheMocks "github.com/allisson/keycache/internal/keycache/usecase/mocks"
	"github.com/allisson/keycache/internal/resolver/domain"
	resolverService "github.com/allisson/keycache/internal/resolver/service"
	resolverUseCase "github.com/allisson/keycache/internal/resolver/usecase"
)

func newRefreshed(ctx context.Context) *keycacheMocks.MockRefreshUseCase {
	refresher := &keycacheMocks.MockRefreshUseCase{}
	refresher.On("Refresh", ctx, mock.Anything).Return(keycacheDomain.RefreshResult{Generation: 1}, nil)
	return refresher
}

func newResolverUseCase(store *service.Store) resolverUseCase.ResolverUseCase {
	return resolverUseCase.NewResolverUseCase(store, resolverService.NewPolicyEngine(), testLogger())
}

func TestRunResolve(t *testing.T) {
	ctx := context.Background()

	completeStore := newTestStore(
		testCert(1, certDomain.OpenPGP, "me@example.net", certDomain.ValidityUltimate, true),
		testCert(2, certDomain.CMS, "me@example.net", certDomain.ValidityUltimate, true),
		testCert(3, certDomain.OpenPGP, "you@example.net", certDomain.ValidityFull, false),
	)
	ambiguousStore := newTestStore(
		testCert(1, certDomain.OpenPGP, "me@example.net", certDomain.ValidityUltimate, true),
		testCert(4, certDomain.OpenPGP, "twin@example.net", certDomain.ValidityFull, false),
		testCert(5, certDomain.OpenPGP, "twin@example.net", certDomain.ValidityFull, false),
	)
	twinOpts := ResolveOptions{
		Sender:        "me@example.net",
		Recipients:    []string{"twin@example.net"},
		Encrypt:       true,
		ForceProtocol: "openpgp",
		Format:        "text",
	}

	t.Run("complete-text", func(t *testing.T) {
		var out bytes.Buffer
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(completeStore), testLogger(), IOTuple{Writer: &out}, ResolveOptions{
			Sender:     "me@example.net",
			Recipients: []string{"you@example.net"},
			Sign:       true,
			Encrypt:    true,
			Format:     "text",
		})

		require.NoError(t, err)
		require.Contains(t, out.String(), fpr(1))
		require.Contains(t, out.String(), fpr(3))
		require.NotContains(t, out.String(), fpr(2))
		require.Contains(t, out.String(), "Protocol: openpgp")
	})

	t.Run("complete-json", func(t *testing.T) {
		var out bytes.Buffer
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(completeStore), testLogger(), IOTuple{Writer: &out}, ResolveOptions{
			Recipients: []string{"you@example.net"},
			Encrypt:    true,
			Format:     "json",
		})
		require.NoError(t, err)

		var response resolveOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &response))
		require.True(t, response.Complete)
		require.False(t, response.SendUnencrypted)
		require.Equal(t, fpr(3), response.EncryptionKeys["openpgp"]["you@example.net"][0].Fingerprint)
	})

	t.Run("ambiguous-without-interaction", func(t *testing.T) {
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(ambiguousStore), testLogger(), IOTuple{Writer: &bytes.Buffer{}}, twinOpts)

		require.ErrorIs(t, err, domain.ErrNoApprover)
		require.ErrorIs(t, err, domain.ErrAmbiguous)
	})

	t.Run("interactive-pick", func(t *testing.T) {
		opts := twinOpts
		opts.Interactive = true

		var out bytes.Buffer
		in := strings.NewReader("2\ny\n")
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(ambiguousStore), testLogger(), IOTuple{Reader: in, Writer: &out}, opts)

		require.NoError(t, err)
		require.Contains(t, out.String(), "Key for twin@example.net [1-2, empty to skip]")
		require.Contains(t, out.String(), "Protocol: openpgp")
	})

	t.Run("interactive-cancel", func(t *testing.T) {
		opts := twinOpts
		opts.Interactive = true

		in := strings.NewReader("\nn\n")
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(ambiguousStore), testLogger(), IOTuple{Reader: in, Writer: &bytes.Buffer{}}, opts)

		require.ErrorIs(t, err, domain.ErrCanceled)
	})

	t.Run("interactive-send-unencrypted", func(t *testing.T) {
		opts := twinOpts
		opts.Interactive = true
		opts.AllowUnencrypted = true

		var out bytes.Buffer
		in := strings.NewReader("\nu\n")
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(ambiguousStore), testLogger(), IOTuple{Reader: in, Writer: &out}, opts)

		require.NoError(t, err)
		require.Contains(t, out.String(), "Message will be sent unencrypted.")
	})

	t.Run("interactive-invalid-selection", func(t *testing.T) {
		opts := twinOpts
		opts.Interactive = true

		in := strings.NewReader("9\n")
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(ambiguousStore), testLogger(), IOTuple{Reader: in, Writer: &bytes.Buffer{}}, opts)

		require.ErrorContains(t, err, "invalid selection")
	})

	t.Run("invalid-options", func(t *testing.T) {
		uc := newResolverUseCase(completeStore)
		out := IOTuple{Writer: &bytes.Buffer{}}

		require.ErrorContains(t, RunResolve(ctx, &keycacheMocks.MockRefreshUseCase{}, uc, testLogger(), out,
			ResolveOptions{Format: "xml"}), "invalid format")
		require.ErrorContains(t, RunResolve(ctx, &keycacheMocks.MockRefreshUseCase{}, uc, testLogger(), out,
			ResolveOptions{Format: "text", ForceProtocol: "ssh"}), "invalid protocol")
		require.ErrorContains(t, RunResolve(ctx, &keycacheMocks.MockRefreshUseCase{}, uc, testLogger(), out,
			ResolveOptions{Format: "text", MinimumValidity: "trusted"}), "invalid minimum validity")
	})

	t.Run("invalid-request", func(t *testing.T) {
		err := RunResolve(ctx, newRefreshed(ctx), newResolverUseCase(completeStore), testLogger(), IOTuple{Writer: &bytes.Buffer{}}, ResolveOptions{
			Recipients: []string{"you@example.net"},
			Format:     "text",
		})

		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}
