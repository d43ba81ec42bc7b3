package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
	"github.com/allisson/keycache/internal/resolver/domain"
	"github.com/allisson/keycache/internal/resolver/http/dto"
	resolverUseCase "github.com/allisson/keycache/internal/resolver/usecase"
)

// ResolveOptions describes the message whose keys are resolved.
type ResolveOptions struct {
	Sender           string
	Recipients       []string
	Sign             bool
	Encrypt          bool
	AllowMixed       bool
	AllowUnencrypted bool
	ForceProtocol    string
	PresetProtocol   string
	MinimumValidity  string
	Interactive      bool // Ask on the terminal when the result is incomplete
	Format           string
}

type resolveOutput struct {
	dto.ResolveResponse
	SendUnencrypted bool `json:"send_unencrypted"`
}

// RunResolve loads the cache and resolves signing and encryption keys for a
// message. Without --interactive an incomplete result is an error.
func RunResolve(
	ctx context.Context,
	refreshUseCase keycacheUseCase.RefreshUseCase,
	resolver resolverUseCase.ResolverUseCase,
	logger *slog.Logger,
	io IOTuple,
	opts ResolveOptions,
) error {
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	force, err := parseOptionalProtocol(opts.ForceProtocol)
	if err != nil {
		return err
	}
	preset, err := parseOptionalProtocol(opts.PresetProtocol)
	if err != nil {
		return err
	}
	var minimum *certDomain.Validity
	if opts.MinimumValidity != "" {
		parsed, err := certDomain.ParseValidity(opts.MinimumValidity)
		if err != nil {
			return fmt.Errorf("invalid minimum validity %q: %w", opts.MinimumValidity, err)
		}
		minimum = &parsed
	}

	result, err := refreshUseCase.Refresh(ctx)
	if result.Generation == 0 {
		return fmt.Errorf("failed to load certificates: %w", err)
	}
	if err != nil {
		logger.Warn("certificate listing incomplete", slog.Any("error", err))
	}

	var approver resolverUseCase.Approver
	if opts.Interactive {
		approver = newTerminalApprover(io)
	}

	keyResolver := resolver.NewKeyResolver(opts.Encrypt, opts.Sign, approver)
	keyResolver.SetSender(opts.Sender)
	keyResolver.SetRecipients(opts.Recipients)
	keyResolver.SetForcedProtocol(force)
	keyResolver.SetPreferredProtocol(preset)
	keyResolver.SetAllowMixedProtocols(opts.AllowMixed)
	keyResolver.SetAllowUnencrypted(opts.AllowUnencrypted)
	if minimum != nil {
		keyResolver.SetMinimumValidity(*minimum)
	}

	var outcome domain.Outcome
	select {
	case outcome = <-keyResolver.Start(ctx, false):
	case <-ctx.Done():
		return ctx.Err()
	}
	if outcome.Err != nil {
		return fmt.Errorf("key resolution failed: %w", outcome.Err)
	}

	applied := keyResolver.Result()
	logger.Info("keys resolved",
		slog.String("protocol", applied.Label()),
		slog.Bool("send_unencrypted", outcome.SendUnencrypted),
	)

	if opts.Format == "json" {
		return writeJSON(io.Writer, resolveOutput{
			ResolveResponse: dto.MapResultToResponse(applied),
			SendUnencrypted: outcome.SendUnencrypted,
		})
	}
	return writeSolutionTable(io.Writer, &applied.Solution, outcome.SendUnencrypted)
}

func writeSolutionTable(w io.Writer, s *domain.Solution, sendUnencrypted bool) error {
	table := newTable(w, "USE", "PROTOCOL", "ADDRESS", "FINGERPRINT", "USER ID")
	for _, protocol := range certDomain.Protocols {
		for _, c := range s.SigningKeys[protocol] {
			table.Append([]string{"sign", protocol.String(), "", c.Fingerprint, c.PrimaryUserID().ID})
		}
		byAddress := s.EncryptionKeys[protocol]
		addresses := make([]string, 0, len(byAddress))
		for address := range byAddress {
			addresses = append(addresses, address)
		}
		sort.Strings(addresses)
		for _, address := range addresses {
			for _, c := range byAddress[address] {
				table.Append([]string{"encrypt", protocol.String(), address, c.Fingerprint, c.PrimaryUserID().ID})
			}
		}
	}
	table.Render()

	if sendUnencrypted {
		_, err := fmt.Fprintln(w, "Message will be sent unencrypted.")
		return err
	}
	_, err := fmt.Fprintf(w, "Protocol: %s\n", s.Label())
	return err
}

// terminalApprover asks on a terminal which candidate to use for every
// unresolved address and whether to accept the proposal.
type terminalApprover struct {
	reader *bufio.Reader
	writer io.Writer
}

func newTerminalApprover(io IOTuple) *terminalApprover {
	return &terminalApprover{reader: bufio.NewReader(io.Reader), writer: io.Writer}
}

func (a *terminalApprover) prompt(question string) (string, error) {
	if _, err := fmt.Fprint(a.writer, question); err != nil {
		return "", err
	}
	answer, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Approve implements resolverUseCase.Approver.
func (a *terminalApprover) Approve(ctx context.Context, proposal domain.Proposal) (domain.Decision, error) {
	result := proposal.Result

	_, _ = fmt.Fprintf(a.writer, "Proposed keys (%s):\n", result.Label())
	if err := writeSolutionTable(a.writer, &result.Solution, false); err != nil {
		return domain.Decision{}, err
	}

	replaced := false
	for _, u := range result.Unresolved {
		_, _ = fmt.Fprintf(a.writer, "No %s key for %s (%s, %s)\n", u.Operation, u.Address, u.Protocol, u.Reason)
		if len(u.Candidates) == 0 {
			continue
		}
		for i, candidate := range u.Candidates {
			note := ""
			if !candidate.Usable {
				note = " (not usable)"
			}
			_, _ = fmt.Fprintf(a.writer, "  [%d] %s %s %s validity=%s%s\n",
				i+1,
				candidate.Certificate.Protocol,
				candidate.Certificate.Fingerprint,
				candidate.Certificate.PrimaryUserID().ID,
				candidate.Validity,
				note,
			)
		}

		answer, err := a.prompt(fmt.Sprintf("Key for %s [1-%d, empty to skip]: ", u.Address, len(u.Candidates)))
		if err != nil {
			return domain.Decision{}, err
		}
		if answer == "" {
			continue
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(u.Candidates) {
			return domain.Decision{}, fmt.Errorf("invalid selection %q for %s", answer, u.Address)
		}

		cert := u.Candidates[n-1].Certificate
		if u.Operation == certDomain.OperationSign {
			result.SigningKeys[cert.Protocol] = append(result.SigningKeys[cert.Protocol], cert)
		} else {
			result.AddEncryptionKeys(cert.Protocol, u.Address, cert)
		}
		replaced = true
	}

	options := "[y]es, [N]o"
	if proposal.Request.AllowUnencrypted && proposal.Request.Encrypt {
		options = "[y]es, send [u]nencrypted, [N]o"
	}
	answer, err := a.prompt(fmt.Sprintf("Accept? %s: ", options))
	if err != nil {
		return domain.Decision{}, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		decision := domain.Decision{Action: domain.DecisionAccept}
		if replaced {
			decision.SigningKeys = result.SigningKeys
			decision.EncryptionKeys = result.EncryptionKeys
		}
		return decision, nil
	case "u", "unencrypted":
		return domain.Decision{Action: domain.DecisionSendUnencrypted}, nil
	default:
		return domain.Decision{Action: domain.DecisionCancel}, nil
	}
}
