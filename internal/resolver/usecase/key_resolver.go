package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
	"github.com/allisson/keycache/internal/resolver/domain"
)

// KeyResolver is the lifecycle of one resolution request: configure it with
// the setters, Start it once, then read the applied keys.
//
// The zero value is not usable; create one with NewKeyResolver or
// ResolverUseCase.NewKeyResolver.
type KeyResolver struct {
	store    SnapshotSource
	engine   PolicyEngine
	approver Approver
	logger   *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	request domain.Request
	started bool
	applied *domain.Result
}

// NewKeyResolver creates a resolver for a message that is encrypted and/or
// signed. Without an approver, incomplete results fail.
func NewKeyResolver(store SnapshotSource, engine PolicyEngine, encrypt, sign bool) *KeyResolver {
	return &KeyResolver{
		store:   store,
		engine:  engine,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:   time.Now,
		request: domain.Request{Encrypt: encrypt, Sign: sign},
	}
}

func (k *KeyResolver) update(fn func(r *domain.Request)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	fn(&k.request)
}

// SetApprover sets the collaborator asked to complete or confirm results.
func (k *KeyResolver) SetApprover(approver Approver) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.approver = approver
}

// SetSender sets the sender address used for signing and encrypt-to-self.
func (k *KeyResolver) SetSender(address string) {
	k.update(func(r *domain.Request) { r.Sender = address })
}

// SetRecipients sets the recipient addresses or group names.
func (k *KeyResolver) SetRecipients(addresses []string) {
	k.update(func(r *domain.Request) { r.Recipients = append([]string(nil), addresses...) })
}

// SetOverrideKeys sets per protocol fingerprints that replace lookups by address.
func (k *KeyResolver) SetOverrideKeys(overrides domain.Overrides) {
	k.update(func(r *domain.Request) { r.Overrides = overrides.Clone() })
}

// SetPreferredProtocol sets the protocol tried first. UnknownProtocol clears it.
func (k *KeyResolver) SetPreferredProtocol(protocol certDomain.Protocol) {
	k.update(func(r *domain.Request) { r.PresetProtocol = protocol })
}

// SetForcedProtocol restricts resolution to one protocol. UnknownProtocol clears it.
func (k *KeyResolver) SetForcedProtocol(protocol certDomain.Protocol) {
	k.update(func(r *domain.Request) { r.ForceProtocol = protocol })
}

// SetAllowMixedProtocols allows OpenPGP and CMS keys in the same solution.
func (k *KeyResolver) SetAllowMixedProtocols(allow bool) {
	k.update(func(r *domain.Request) { r.AllowMixed = allow })
}

// SetMinimumValidity sets the least user ID validity of selected keys.
// Without a call the request uses domain.DefaultMinimumValidity.
func (k *KeyResolver) SetMinimumValidity(validity certDomain.Validity) {
	k.update(func(r *domain.Request) { r.MinimumValidity = &validity })
}

// SetAllowUnencrypted lets the approver offer sending without encryption.
func (k *KeyResolver) SetAllowUnencrypted(allow bool) {
	k.update(func(r *domain.Request) { r.AllowUnencrypted = allow })
}

// Start resolves the request in the background and returns a channel that
// delivers exactly one Outcome. The approver is consulted when the automatic
// result is incomplete or when showApproval is set.
func (k *KeyResolver) Start(ctx context.Context, showApproval bool) <-chan domain.Outcome {
	out := make(chan domain.Outcome, 1)

	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		out <- domain.Outcome{Err: domain.ErrAlreadyStarted}
		close(out)
		return out
	}
	k.started = true
	req := k.request
	approver := k.approver
	k.mu.Unlock()

	go func() {
		defer close(out)
		outcome, applied := k.run(ctx, req, approver, showApproval)

		k.mu.Lock()
		k.applied = applied
		k.mu.Unlock()

		k.logger.Debug("key resolution finished",
			slog.Bool("success", outcome.Success),
			slog.Bool("send_unencrypted", outcome.SendUnencrypted),
			slog.Any("error", outcome.Err),
		)
		out <- outcome
	}()
	return out
}

// run returns the outcome and the result to apply, nil on failure.
func (k *KeyResolver) run(
	ctx context.Context,
	req domain.Request,
	approver Approver,
	showApproval bool,
) (domain.Outcome, *domain.Result) {
	req = req.Normalize(k.clock())
	if err := req.Validate(); err != nil {
		return domain.Outcome{Err: err}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Outcome{Err: err}, nil
	}

	result := k.engine.Resolve(k.store.Snapshot(), req)
	if result.Complete && !showApproval {
		return domain.Outcome{Success: true}, result
	}
	if approver == nil {
		if result.Complete {
			return domain.Outcome{Success: true}, result
		}
		return domain.Outcome{Err: failure(req, result)}, nil
	}

	decision, err := approver.Approve(ctx, domain.Proposal{Request: req, Result: result.Clone()})
	if err != nil {
		return domain.Outcome{Err: errors.Wrap(err, "approval failed")}, nil
	}

	switch decision.Action {
	case domain.DecisionAccept:
		final := accept(result, decision, req)
		if !final.Complete {
			return domain.Outcome{Err: errors.Wrap(domain.ErrPolicyViolation, "accepted keys do not cover the request")}, nil
		}
		return domain.Outcome{Success: true}, final
	case domain.DecisionSendUnencrypted:
		if !req.AllowUnencrypted || !req.Encrypt {
			return domain.Outcome{Err: errors.Wrap(domain.ErrPolicyViolation, "unencrypted sending not allowed")}, nil
		}
		final, ok := sendUnencrypted(result, decision, req)
		if !ok {
			return domain.Outcome{Err: errors.Wrap(domain.ErrPolicyViolation, "no signing key")}, nil
		}
		return domain.Outcome{Success: true, SendUnencrypted: true}, final
	default:
		return domain.Outcome{Err: domain.ErrCanceled}, nil
	}
}

// failure explains why an incomplete result cannot be applied.
func failure(req domain.Request, result *domain.Result) error {
	for _, u := range result.Unresolved {
		if u.Reason == domain.ReasonAmbiguous {
			return errors.Join(domain.ErrNoApprover, errors.Wrapf(domain.ErrAmbiguous, "%s", u.Address))
		}
	}
	if req.ForceProtocol != certDomain.UnknownProtocol {
		return errors.Wrapf(domain.ErrPolicyViolation, "no usable %s keys for every address", req.ForceProtocol)
	}
	return domain.ErrNoApprover
}

// accept applies the approver's replacement keys to a copy of result.
func accept(result *domain.Result, decision domain.Decision, req domain.Request) *domain.Result {
	final := result.Clone()
	if decision.SigningKeys != nil || decision.EncryptionKeys != nil {
		replaced := domain.NewSolution(final.Protocol)
		replaced.Mixed = final.Mixed
		replaced.SigningKeys = final.SigningKeys
		replaced.EncryptionKeys = final.EncryptionKeys
		replaced.Unresolved = final.Unresolved
		if decision.SigningKeys != nil {
			replaced.SigningKeys = decision.SigningKeys
		}
		if decision.EncryptionKeys != nil {
			replaced.EncryptionKeys = decision.EncryptionKeys
		}
		if !replaced.Mixed {
			if used := replaced.ProtocolsUsed(); len(used) > 1 {
				replaced.Protocol = certDomain.UnknownProtocol
				replaced.Mixed = true
			} else if len(used) == 1 {
				replaced.Protocol = used[0]
			}
		}
		final.Solution = *replaced.Clone()
	}
	if final.Evaluate(req) {
		final.Unresolved = nil
	}
	return final
}

// sendUnencrypted keeps only the signing keys. It reports false when the
// message must be signed and no signing key is left.
func sendUnencrypted(result *domain.Result, decision domain.Decision, req domain.Request) (*domain.Result, bool) {
	final := result.Clone()
	if decision.SigningKeys != nil {
		final.SigningKeys = decision.SigningKeys
	}
	final.EncryptionKeys = map[certDomain.Protocol]map[string][]*certDomain.Certificate{}
	final.Unresolved = nil
	final.Complete = !req.Sign || len(final.ProtocolsUsed()) > 0
	return final, final.Complete
}

// SigningKeys returns a copy of the applied signing keys, empty unless the
// resolution succeeded.
func (k *KeyResolver) SigningKeys() map[certDomain.Protocol][]*certDomain.Certificate {
	if result := k.Result(); result != nil {
		return result.SigningKeys
	}
	return map[certDomain.Protocol][]*certDomain.Certificate{}
}

// EncryptionKeys returns a copy of the applied encryption keys per protocol
// and address, empty unless the resolution succeeded.
func (k *KeyResolver) EncryptionKeys() map[certDomain.Protocol]map[string][]*certDomain.Certificate {
	if result := k.Result(); result != nil {
		return result.EncryptionKeys
	}
	return map[certDomain.Protocol]map[string][]*certDomain.Certificate{}
}

// Result returns a copy of the applied result, nil before a successful Start.
func (k *KeyResolver) Result() *domain.Result {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.applied.Clone()
}
