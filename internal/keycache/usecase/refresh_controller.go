package usecase

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
)

// RefreshConfig holds refresh controller configuration.
type RefreshConfig struct {
	Protocols     []certDomain.Protocol // Protocols refreshed when a request names none
	EngineTimeout time.Duration         // Per-protocol listing timeout, zero for none
}

// pass is one scheduled refresh and everybody waiting for it.
type pass struct {
	protocols []certDomain.Protocol
	waiters   []chan domain.RefreshResult
}

func (p *pass) merge(protocols []certDomain.Protocol) {
	p.protocols = lo.Uniq(append(p.protocols, protocols...))
	slices.Sort(p.protocols)
}

// RefreshController reloads the certificate store from a KeyLister.
//
// At most one pass runs at a time. Requests arriving while a pass runs are
// coalesced into a single pending pass whose protocol set is the union of
// theirs; every waiter of the pending pass receives its result. Passes are
// applied in the order they were scheduled.
type RefreshController struct {
	config RefreshConfig
	lister KeyLister
	groups GroupSource
	store  Store
	logger *slog.Logger
	clock  func() time.Time

	mu          sync.Mutex
	running     bool
	pending     *pass
	closed      bool
	subscribers map[int]func(domain.RefreshResult)
	nextSubID   int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewRefreshController creates a RefreshController. groups may be nil when key
// groups are disabled.
func NewRefreshController(
	config RefreshConfig,
	lister KeyLister,
	groups GroupSource,
	store Store,
	logger *slog.Logger,
) *RefreshController {
	if len(config.Protocols) == 0 {
		config.Protocols = certDomain.Protocols
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshController{
		config:      config,
		lister:      lister,
		groups:      groups,
		store:       store,
		logger:      logger,
		clock:       time.Now,
		subscribers: make(map[int]func(domain.RefreshResult)),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// StartRefresh schedules a refresh and returns immediately.
// Passes run on the controller's context; ctx is only used for logging.
func (c *RefreshController) StartRefresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) <-chan domain.RefreshResult {
	future := make(chan domain.RefreshResult, 1)

	requested := c.requested(protocols)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		now := c.clock()
		future <- domain.RefreshResult{Err: domain.ErrControllerClosed, StartedAt: now, FinishedAt: now}
		close(future)
		return future
	}

	if !c.running {
		c.running = true
		p := &pass{waiters: []chan domain.RefreshResult{future}}
		p.merge(requested)
		c.wg.Add(1)
		go c.run(p)
		c.logger.DebugContext(ctx, "refresh started", slog.Any("protocols", p.protocols))
		return future
	}

	if c.pending == nil {
		c.pending = &pass{}
	}
	c.pending.merge(requested)
	c.pending.waiters = append(c.pending.waiters, future)
	c.logger.DebugContext(ctx, "refresh coalesced", slog.Any("protocols", c.pending.protocols))
	return future
}

// requested keeps the enabled protocols out of protocols, or every enabled
// protocol when none is given.
func (c *RefreshController) requested(protocols []certDomain.Protocol) []certDomain.Protocol {
	if len(protocols) == 0 {
		return c.config.Protocols
	}
	return lo.Filter(protocols, func(p certDomain.Protocol, _ int) bool {
		return slices.Contains(c.config.Protocols, p)
	})
}

// Refresh schedules a refresh and waits for its result.
func (c *RefreshController) Refresh(
	ctx context.Context,
	protocols ...certDomain.Protocol,
) (domain.RefreshResult, error) {
	select {
	case result := <-c.StartRefresh(ctx, protocols...):
		return result, result.Err
	case <-ctx.Done():
		return domain.RefreshResult{}, ctx.Err()
	}
}

// Subscribe registers fn to be called after every published refresh.
func (c *RefreshController) Subscribe(fn func(domain.RefreshResult)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Close rejects further requests, fails the pending pass and waits for the
// running one.
func (c *RefreshController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		now := c.clock()
		deliver(pending.waiters, domain.RefreshResult{
			Err:        domain.ErrControllerClosed,
			StartedAt:  now,
			FinishedAt: now,
		})
	}

	c.wg.Wait()
	c.cancel()
	return nil
}

// run executes p and then every pass that was scheduled while it ran.
func (c *RefreshController) run(p *pass) {
	defer c.wg.Done()

	for {
		result := c.execute(c.ctx, p.protocols)
		deliver(p.waiters, result)
		c.notify(result)

		c.mu.Lock()
		if c.pending == nil {
			c.running = false
			c.mu.Unlock()
			return
		}
		p = c.pending
		c.pending = nil
		c.mu.Unlock()
	}
}

func deliver(waiters []chan domain.RefreshResult, result domain.RefreshResult) {
	for _, w := range waiters {
		w <- result
		close(w)
	}
}

func (c *RefreshController) notify(result domain.RefreshResult) {
	c.mu.Lock()
	subscribers := lo.Values(c.subscribers)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(result)
	}
}

// execute lists protocols concurrently, loads the groups and publishes the
// merged snapshot. Protocols that fail or were not requested keep their
// previous certificates.
func (c *RefreshController) execute(ctx context.Context, protocols []certDomain.Protocol) domain.RefreshResult {
	result := domain.RefreshResult{
		Protocols: make([]domain.ProtocolResult, len(protocols)),
		StartedAt: c.clock(),
	}
	listed := make([][]*certDomain.Certificate, len(protocols))

	var g errgroup.Group
	for i, protocol := range protocols {
		g.Go(func() error {
			certs, err := c.listProtocol(ctx, protocol)
			result.Protocols[i] = domain.ProtocolResult{Protocol: protocol, Count: len(certs), Err: err}
			listed[i] = certs
			return nil
		})
	}
	_ = g.Wait()

	var (
		replaced []certDomain.Protocol
		certs    []*certDomain.Certificate
		errs     []error
	)
	groupsRev := c.store.GroupsRevision()
	for i, pr := range result.Protocols {
		if pr.Err != nil {
			errs = append(errs, pr.Err)
			c.logger.Error("failed to list keys",
				slog.String("protocol", pr.Protocol.String()),
				slog.Any("error", pr.Err),
			)
			continue
		}
		replaced = append(replaced, pr.Protocol)
		certs = append(certs, listed[i]...)
	}

	groups, err := c.loadGroups(ctx)
	if err != nil {
		result.GroupsErr = err
		errs = append(errs, err)
		c.logger.Error("failed to load key groups", slog.Any("error", err))
	}
	result.GroupCount = len(groups)

	// Passes are serialized, so nothing else replaces certificates between
	// reading prev and publishing.
	prev := c.store.Snapshot()
	kept := lo.Filter(prev.Certificates(domain.Filter{}), func(cert *certDomain.Certificate, _ int) bool {
		return !slices.Contains(replaced, cert.Protocol)
	})
	snapshot := c.store.ReplaceAll(append(kept, certs...), groups, groupsRev)

	result.Generation = snapshot.Generation()
	result.Err = errors.Join(errs...)
	result.FinishedAt = c.clock()

	c.logger.Info("key cache refreshed",
		slog.Uint64("generation", result.Generation),
		slog.Int("certificates", snapshot.Len()),
		slog.Int("groups", result.GroupCount),
		slog.Duration("duration", result.Duration()),
		slog.Bool("succeeded", result.Succeeded()),
	)
	return result
}

// listProtocol lists public and secret keys of protocol concurrently and marks
// the public certificates that have secret key material.
func (c *RefreshController) listProtocol(
	ctx context.Context,
	protocol certDomain.Protocol,
) ([]*certDomain.Certificate, error) {
	if c.config.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.EngineTimeout)
		defer cancel()
	}

	var public, secret []*certDomain.Certificate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		public, err = c.lister.ListKeys(gctx, protocol, ListOptions{})
		return err
	})
	g.Go(func() error {
		var err error
		secret, err = c.lister.ListKeys(gctx, protocol, ListOptions{SecretOnly: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &domain.EngineError{Protocol: protocol, Err: err}
	}

	return markSecrets(public, secret), nil
}

// markSecrets sets HasSecret on the certificates (and subkeys) present in the
// secret listing. Secret keys missing from the public listing are kept.
func markSecrets(public, secret []*certDomain.Certificate) []*certDomain.Certificate {
	secretByFpr := lo.KeyBy(secret, func(c *certDomain.Certificate) string {
		return certDomain.NormalizeIdentifier(c.Fingerprint)
	})

	seen := make(map[string]bool, len(public))
	for _, cert := range public {
		fpr := certDomain.NormalizeIdentifier(cert.Fingerprint)
		seen[fpr] = true

		sec, ok := secretByFpr[fpr]
		if !ok {
			continue
		}
		cert.HasSecret = true

		flagged := anySubkeyFlagged(sec.Subkeys)
		secretSubkeys := make(map[string]bool, len(sec.Subkeys))
		for _, sk := range sec.Subkeys {
			if sk.HasSecret || !flagged {
				secretSubkeys[certDomain.NormalizeIdentifier(sk.Fingerprint)] = true
			}
		}
		for i := range cert.Subkeys {
			if secretSubkeys[certDomain.NormalizeIdentifier(cert.Subkeys[i].Fingerprint)] {
				cert.Subkeys[i].HasSecret = true
			}
		}
	}

	for _, sec := range secret {
		if seen[certDomain.NormalizeIdentifier(sec.Fingerprint)] {
			continue
		}
		sec.HasSecret = true
		public = append(public, sec)
	}
	return public
}

// anySubkeyFlagged reports whether the engine flagged secret subkeys
// individually. When it did not, every listed subkey counts as secret.
func anySubkeyFlagged(subkeys []certDomain.Subkey) bool {
	return lo.CountBy(subkeys, func(sk certDomain.Subkey) bool { return sk.HasSecret }) > 0
}

func (c *RefreshController) loadGroups(ctx context.Context) ([]*groupsDomain.KeyGroup, error) {
	if c.groups == nil {
		return nil, nil
	}
	groups, err := c.groups.ListAll(ctx)
	if err != nil {
		return c.store.Snapshot().Groups(), err
	}
	return groups, nil
}
