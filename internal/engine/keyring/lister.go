// Package keyring lists certificates by reading OpenPGP keyring files and PEM
// bundles directly, without any external tool.
package keyring

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/usecase"
)

// Config holds the file engine configuration.
type Config struct {
	OpenPGPFiles        []string // Binary or armored keyrings
	CMSFiles            []string // PEM bundles of certificates and private keys
	TrustedFingerprints []string // Certificates considered fully valid
}

// Lister implements usecase.KeyLister on top of keyring files.
type Lister struct {
	config  Config
	trusted map[string]bool
	logger  *slog.Logger
	clock   func() time.Time
}

// NewLister creates a Lister.
func NewLister(config Config, logger *slog.Logger) *Lister {
	trusted := make(map[string]bool, len(config.TrustedFingerprints))
	for _, fpr := range config.TrustedFingerprints {
		if normalized, err := certDomain.NormalizeFingerprint(fpr); err == nil {
			trusted[normalized] = true
		}
	}
	return &Lister{
		config:  config,
		trusted: trusted,
		logger:  logger,
		clock:   time.Now,
	}
}

// ListKeys reads the files configured for protocol and returns the
// certificates matching opts.
func (l *Lister) ListKeys(
	ctx context.Context,
	protocol certDomain.Protocol,
	opts usecase.ListOptions,
) ([]*certDomain.Certificate, error) {
	var (
		certs []*certDomain.Certificate
		err   error
	)
	switch protocol {
	case certDomain.OpenPGP:
		certs, err = l.listOpenPGP(ctx)
	case certDomain.CMS:
		certs, err = l.listCMS(ctx)
	default:
		return nil, certDomain.ErrUnknownProtocol
	}
	if err != nil {
		return nil, err
	}

	certs = lo.Filter(certs, func(c *certDomain.Certificate, _ int) bool {
		if opts.SecretOnly && !c.HasSecret {
			return false
		}
		return matchesAny(c, opts.Patterns)
	})
	l.logger.Debug("keyring listing finished",
		slog.String("protocol", protocol.String()),
		slog.Bool("secret", opts.SecretOnly),
		slog.Int("count", len(certs)),
	)
	return certs, nil
}

func (l *Lister) listOpenPGP(ctx context.Context) ([]*certDomain.Certificate, error) {
	now := l.clock()
	var certs []*certDomain.Certificate
	for _, path := range l.config.OpenPGPFiles {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", path, err)
		}
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "read keyring: %v", err)
		}
		entities, err := readEntities(data)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", path, err)
		}
		for _, e := range entities {
			certs = append(certs, fromEntity(e, l.trusted, path, now))
		}
	}
	return certs, nil
}

func (l *Lister) listCMS(ctx context.Context) ([]*certDomain.Certificate, error) {
	now := l.clock()

	// Chains may span files, so every bundle is read before converting.
	b := &bundle{}
	origins := make(map[int]string)
	for _, path := range l.config.CMSFiles {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", path, err)
		}
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "read bundle: %v", err)
		}
		first := len(b.certs)
		if err := b.add(data); err != nil {
			return nil, errors.Wrapf(domain.ErrEngine, "%s: %v", path, err)
		}
		for i := first; i < len(b.certs); i++ {
			origins[i] = path
		}
	}

	v := b.verifier()
	seen := make(map[string]bool, len(b.certs))
	certs := make([]*certDomain.Certificate, 0, len(b.certs))
	for i, cert := range b.certs {
		c := b.fromX509(cert, v, l.trusted, origins[i], now)
		if seen[c.Fingerprint] {
			continue
		}
		seen[c.Fingerprint] = true
		certs = append(certs, c)
	}
	return certs, nil
}

// matchesAny reports whether c matches one of the patterns the way a gpg
// listing would: by fingerprint, key ID or a case-insensitive substring of
// a user ID. No patterns match everything.
func matchesAny(c *certDomain.Certificate, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matches(c, pattern) {
			return true
		}
	}
	return false
}

func matches(c *certDomain.Certificate, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}

	id := certDomain.NormalizeIdentifier(pattern)
	switch {
	case certDomain.IsFingerprint(id):
		if c.Fingerprint == id {
			return true
		}
		return lo.ContainsBy(c.Subkeys, func(sk certDomain.Subkey) bool { return sk.Fingerprint == id })
	case certDomain.IsKeyID(id), certDomain.IsShortKeyID(id):
		return lo.ContainsBy(c.KeyIDs(), func(keyID string) bool { return strings.HasSuffix(keyID, id) })
	}

	needle := strings.ToLower(strings.Trim(pattern, "<>"))
	return lo.ContainsBy(c.UserIDs, func(uid certDomain.UserID) bool {
		return strings.Contains(strings.ToLower(uid.ID), needle)
	})
}
