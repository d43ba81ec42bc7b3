package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	keycacheDomain "github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/http/dto"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
)

// ListKeysOptions narrows the list-keys output.
type ListKeysOptions struct {
	Protocol   string
	Email      string
	SecretOnly bool
	Format     string
}

// RunListKeys refreshes the cache once and prints the matching certificates.
// Engine errors on one protocol are reported as warnings; the certificates of
// the other protocols are still listed.
func RunListKeys(
	ctx context.Context,
	refreshUseCase keycacheUseCase.RefreshUseCase,
	store keycacheUseCase.SnapshotSource,
	logger *slog.Logger,
	io IOTuple,
	opts ListKeysOptions,
) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}

	protocol, err := parseOptionalProtocol(opts.Protocol)
	if err != nil {
		return err
	}

	filter := keycacheDomain.Filter{Protocol: protocol, SecretOnly: opts.SecretOnly}
	if opts.Email != "" {
		email, err := certDomain.NormalizeEmail(opts.Email)
		if err != nil {
			return fmt.Errorf("invalid email %q: %w", opts.Email, err)
		}
		filter.Email = email
	}

	var protocols []certDomain.Protocol
	if protocol != certDomain.UnknownProtocol {
		protocols = append(protocols, protocol)
	}

	result, err := refreshUseCase.Refresh(ctx, protocols...)
	if result.Generation == 0 {
		return fmt.Errorf("failed to load certificates: %w", err)
	}
	if err != nil {
		logger.Warn("certificate listing incomplete", slog.Any("error", err))
	}

	certs := store.Snapshot().Certificates(filter)

	if opts.Format == "json" {
		return writeJSON(io.Writer, dto.MapCertificateListToResponse(certs))
	}

	table := newTable(io.Writer, "PROTOCOL", "FINGERPRINT", "USER ID", "VALIDITY", "CAPABILITIES", "SECRET")
	for _, c := range certs {
		uid := c.PrimaryUserID()
		table.Append([]string{
			c.Protocol.String(),
			c.Fingerprint,
			uid.ID,
			uid.Validity.String(),
			capabilityLetters(c),
			yesNo(c.HasSecret),
		})
	}
	table.Render()
	_, err = fmt.Fprintf(io.Writer, "%d certificate(s)\n", len(certs))
	return err
}

// capabilityLetters renders capabilities the way gpg does, e.g. "SCE".
func capabilityLetters(c *certDomain.Certificate) string {
	var b strings.Builder
	if c.CanSign {
		b.WriteByte('S')
	}
	if c.CanCertify {
		b.WriteByte('C')
	}
	if c.CanEncrypt {
		b.WriteByte('E')
	}
	if c.CanAuthenticate {
		b.WriteByte('A')
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
