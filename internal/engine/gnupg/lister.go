// Package gnupg lists certificates by running gpg (OpenPGP) and gpgsm (CMS)
// in colon listing mode.
package gnupg

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/usecase"
)

// Config holds the GnuPG engine configuration.
type Config struct {
	GPGPath   string
	GPGSMPath string
	HomeDir   string        // Passed as --homedir when set
	Timeout   time.Duration // Per invocation, zero for none
}

// Lister implements usecase.KeyLister on top of the GnuPG command line tools.
type Lister struct {
	config  Config
	logger  *slog.Logger
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewLister creates a Lister.
func NewLister(config Config, logger *slog.Logger) *Lister {
	if config.GPGPath == "" {
		config.GPGPath = "gpg"
	}
	if config.GPGSMPath == "" {
		config.GPGSMPath = "gpgsm"
	}
	return &Lister{
		config:  config,
		logger:  logger,
		command: exec.CommandContext,
	}
}

// ListKeys runs the listing command for protocol and parses its output.
func (l *Lister) ListKeys(
	ctx context.Context,
	protocol certDomain.Protocol,
	opts usecase.ListOptions,
) ([]*certDomain.Certificate, error) {
	name, args, err := l.commandLine(protocol, opts)
	if err != nil {
		return nil, err
	}

	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := l.command(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	l.logger.Debug("key listing finished",
		slog.String("command", name),
		slog.Bool("secret", opts.SecretOnly),
		slog.Duration("duration", time.Since(start)),
	)

	if runErr != nil && !notFound(runErr, opts) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", name, ctxErr)
		}
		return nil, errors.Wrapf(domain.ErrEngine, "%s: %v: %s", name, runErr, strings.TrimSpace(stderr.String()))
	}

	certs, err := ParseColonListing(&stdout, protocol, name)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", name, err)
	}
	return certs, nil
}

func (l *Lister) commandLine(protocol certDomain.Protocol, opts usecase.ListOptions) (string, []string, error) {
	args := []string{"--batch", "--with-colons"}
	if l.config.HomeDir != "" {
		args = append(args, "--homedir", l.config.HomeDir)
	}

	var name string
	switch protocol {
	case certDomain.OpenPGP:
		name = l.config.GPGPath
		// Twice, so that subkeys get fingerprints too.
		args = append(args, "--fixed-list-mode", "--with-fingerprint", "--with-fingerprint")
	case certDomain.CMS:
		name = l.config.GPGSMPath
		args = append(args, "--with-fingerprint")
	default:
		return "", nil, certDomain.ErrUnknownProtocol
	}

	if opts.SecretOnly {
		args = append(args, "--list-secret-keys")
	} else {
		args = append(args, "--list-keys")
	}
	if len(opts.Patterns) > 0 {
		args = append(args, "--")
		args = append(args, opts.Patterns...)
	}
	return name, args, nil
}

// notFound reports the exit status gpg uses when a pattern matched nothing.
// Such a listing is a valid empty result, not an engine failure.
func notFound(err error, opts usecase.ListOptions) bool {
	var exitErr *exec.ExitError
	if len(opts.Patterns) == 0 || !errors.As(err, &exitErr) {
		return false
	}
	return exitErr.ExitCode() == 2
}
