package gnupg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/usecase"
)

// TestHelperProcess is not a real test. It stands in for gpg and gpgsm when
// the lister runs the test binary instead of them.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if fixture := os.Getenv("HELPER_FIXTURE"); fixture != "" {
		data, err := os.ReadFile(fixture)
		if err != nil {
			os.Exit(3)
		}
		_, _ = os.Stdout.Write(data)
	}
	if msg := os.Getenv("HELPER_STDERR"); msg != "" {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	if os.Getenv("HELPER_SLEEP") != "" {
		time.Sleep(10 * time.Second)
	}
	code := 0
	if c := os.Getenv("HELPER_EXIT"); c != "" {
		_, _ = fmt.Sscanf(c, "%d", &code)
	}
	os.Exit(code)
}

type recordedCommand struct {
	name string
	args []string
}

func newTestLister(t *testing.T, config Config, env ...string) (*Lister, *recordedCommand) {
	t.Helper()
	recorded := &recordedCommand{}
	lister := NewLister(config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	lister.command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		recorded.name = name
		recorded.args = args
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), append([]string{"GO_WANT_HELPER_PROCESS=1"}, env...)...)
		return cmd
	}
	return lister, recorded
}

func TestLister_ListKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("openpgp public keys", func(t *testing.T) {
		lister, recorded := newTestLister(t, Config{HomeDir: "/tmp/gnupg"}, "HELPER_FIXTURE=testdata/gpg_public.txt")

		certs, err := lister.ListKeys(ctx, certDomain.OpenPGP, usecase.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, certs, 3)

		assert.Equal(t, "gpg", recorded.name)
		assert.Equal(t, []string{
			"--batch", "--with-colons", "--homedir", "/tmp/gnupg",
			"--fixed-list-mode", "--with-fingerprint", "--with-fingerprint",
			"--list-keys",
		}, recorded.args)
	})

	t.Run("cms secret keys with patterns", func(t *testing.T) {
		lister, recorded := newTestLister(t, Config{GPGSMPath: "/usr/bin/gpgsm"}, "HELPER_FIXTURE=testdata/gpgsm_public.txt")

		certs, err := lister.ListKeys(ctx, certDomain.CMS, usecase.ListOptions{
			Patterns:   []string{"alice@example.net"},
			SecretOnly: true,
		})
		require.NoError(t, err)
		assert.Len(t, certs, 2)
		assert.Equal(t, "/usr/bin/gpgsm", recorded.name)
		assert.Equal(t, []string{
			"--batch", "--with-colons", "--with-fingerprint",
			"--list-secret-keys", "--", "alice@example.net",
		}, recorded.args)
	})

	t.Run("pattern without match is empty", func(t *testing.T) {
		lister, _ := newTestLister(t, Config{}, "HELPER_EXIT=2", "HELPER_STDERR=gpg: error reading key: No public key")

		certs, err := lister.ListKeys(ctx, certDomain.OpenPGP, usecase.ListOptions{Patterns: []string{"nobody@example.net"}})
		require.NoError(t, err)
		assert.Empty(t, certs)
	})

	t.Run("failure wraps ErrEngine with stderr", func(t *testing.T) {
		lister, _ := newTestLister(t, Config{}, "HELPER_EXIT=2", "HELPER_STDERR=gpg: keydb_search failed")

		_, err := lister.ListKeys(ctx, certDomain.OpenPGP, usecase.ListOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEngine)
		assert.True(t, strings.Contains(err.Error(), "keydb_search failed"))
	})

	t.Run("timeout", func(t *testing.T) {
		lister, _ := newTestLister(t, Config{Timeout: 50 * time.Millisecond}, "HELPER_SLEEP=1")

		_, err := lister.ListKeys(ctx, certDomain.OpenPGP, usecase.ListOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEngine)
		assert.Contains(t, err.Error(), "deadline exceeded")
	})

	t.Run("unknown protocol", func(t *testing.T) {
		lister, _ := newTestLister(t, Config{})

		_, err := lister.ListKeys(ctx, certDomain.UnknownProtocol, usecase.ListOptions{})
		assert.ErrorIs(t, err, certDomain.ErrUnknownProtocol)
	})
}

var _ usecase.KeyLister = (*Lister)(nil)
