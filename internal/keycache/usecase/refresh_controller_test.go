package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
	"github.com/allisson/keycache/internal/keycache/domain"
	"github.com/allisson/keycache/internal/keycache/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	pgpFpr = "0123456789ABCDEF0123456789ABCDEF01234567"
	cmsFpr = "3333333333333333333333333333333333333333"
)

// fakeLister serves canned listings. When gate is set every call blocks until
// it receives a value, which lets tests hold a pass open.
type fakeLister struct {
	mu      sync.Mutex
	public  map[certDomain.Protocol][]*certDomain.Certificate
	secret  map[certDomain.Protocol][]*certDomain.Certificate
	fail    map[certDomain.Protocol]error
	gate    chan struct{}
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		public: map[certDomain.Protocol][]*certDomain.Certificate{},
		secret: map[certDomain.Protocol][]*certDomain.Certificate{},
		fail:   map[certDomain.Protocol]error{},
	}
}

func (f *fakeLister) ListKeys(
	ctx context.Context,
	protocol certDomain.Protocol,
	opts ListOptions,
) ([]*certDomain.Certificate, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[protocol]; err != nil {
		return nil, err
	}
	source := f.public
	if opts.SecretOnly {
		source = f.secret
	}
	certs := make([]*certDomain.Certificate, 0, len(source[protocol]))
	for _, c := range source[protocol] {
		certs = append(certs, c.Clone())
	}
	return certs, nil
}

func (f *fakeLister) setFail(protocol certDomain.Protocol, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[protocol] = err
}

type fakeGroupSource struct {
	groups []*groupsDomain.KeyGroup
	err    error
	onList func()
}

func (f *fakeGroupSource) ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error) {
	if f.onList != nil {
		f.onList()
	}
	return f.groups, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pgpCert(fpr, email string) *certDomain.Certificate {
	return &certDomain.Certificate{
		Protocol:    certDomain.OpenPGP,
		Fingerprint: fpr,
		CanSign:     true,
		CanEncrypt:  true,
		UserIDs:     []certDomain.UserID{{Email: email, Validity: certDomain.ValidityFull}},
		Subkeys: []certDomain.Subkey{
			{Fingerprint: fpr, CanSign: true},
			{Fingerprint: "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333", CanEncrypt: true},
		},
	}
}

func cmsCert(fpr, email string) *certDomain.Certificate {
	return &certDomain.Certificate{
		Protocol:    certDomain.CMS,
		Fingerprint: fpr,
		CanEncrypt:  true,
		UserIDs:     []certDomain.UserID{{Email: email, Validity: certDomain.ValidityFull}},
	}
}

func TestRefreshController_Refresh(t *testing.T) {
	lister := newFakeLister()
	lister.public[certDomain.OpenPGP] = []*certDomain.Certificate{pgpCert(pgpFpr, "alice@example.net")}
	lister.secret[certDomain.OpenPGP] = []*certDomain.Certificate{pgpCert(pgpFpr, "alice@example.net")}
	lister.public[certDomain.CMS] = []*certDomain.Certificate{cmsCert(cmsFpr, "alice@example.net")}

	store := service.NewStore()
	groups := &fakeGroupSource{groups: []*groupsDomain.KeyGroup{{Name: "ops", Fingerprints: []string{pgpFpr}}}}
	controller := NewRefreshController(RefreshConfig{EngineTimeout: time.Second}, lister, groups, store, testLogger())
	defer func() { _ = controller.Close() }()

	result, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, uint64(1), result.Generation)
	assert.Equal(t, 1, result.GroupCount)
	require.Len(t, result.Protocols, 2)
	assert.Equal(t, certDomain.OpenPGP, result.Protocols[0].Protocol)
	assert.Equal(t, 1, result.Protocols[0].Count)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	assert.True(t, store.Initialized())
	assert.Len(t, store.Snapshot().FindByEmail("alice@example.net"), 2)

	c, ok := store.Snapshot().FindByFingerprint(pgpFpr)
	require.True(t, ok)
	assert.True(t, c.HasSecret)
	assert.True(t, c.Subkeys[1].HasSecret)

	_, ok = store.Snapshot().Group("ops")
	assert.True(t, ok)
}

func TestRefreshController_EmptyListingPopulates(t *testing.T) {
	store := service.NewStore()
	controller := NewRefreshController(RefreshConfig{}, newFakeLister(), nil, store, testLogger())
	defer func() { _ = controller.Close() }()

	_, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, store.Initialized())
	assert.Empty(t, store.Snapshot().FindByEmail("alice@example.net"))
}

func TestRefreshController_FailedProtocolKeepsPrevious(t *testing.T) {
	lister := newFakeLister()
	lister.public[certDomain.OpenPGP] = []*certDomain.Certificate{pgpCert(pgpFpr, "alice@example.net")}
	lister.public[certDomain.CMS] = []*certDomain.Certificate{cmsCert(cmsFpr, "alice@example.net")}

	store := service.NewStore()
	controller := NewRefreshController(RefreshConfig{}, lister, nil, store, testLogger())
	defer func() { _ = controller.Close() }()

	_, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	engineErr := errors.New("gpgsm: exit status 2")
	lister.setFail(certDomain.CMS, engineErr)
	lister.mu.Lock()
	lister.public[certDomain.OpenPGP] = nil
	lister.mu.Unlock()

	result, err := controller.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, result.Succeeded())
	assert.ErrorIs(t, err, domain.ErrEngine)
	assert.ErrorIs(t, err, engineErr)

	var ee *domain.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, certDomain.CMS, ee.Protocol)

	assert.NoError(t, result.Protocols[0].Err)
	assert.Error(t, result.Protocols[1].Err)

	_, ok := store.Snapshot().FindByFingerprint(pgpFpr)
	assert.False(t, ok, "openpgp listed successfully and is replaced")
	_, ok = store.Snapshot().FindByFingerprint(cmsFpr)
	assert.True(t, ok, "cms failed and keeps its certificates")
}

func TestRefreshController_OnlyRequestedProtocols(t *testing.T) {
	lister := newFakeLister()
	lister.public[certDomain.OpenPGP] = []*certDomain.Certificate{pgpCert(pgpFpr, "alice@example.net")}
	lister.public[certDomain.CMS] = []*certDomain.Certificate{cmsCert(cmsFpr, "alice@example.net")}

	store := service.NewStore()
	controller := NewRefreshController(RefreshConfig{}, lister, nil, store, testLogger())
	defer func() { _ = controller.Close() }()

	result, err := controller.Refresh(context.Background(), certDomain.CMS)
	require.NoError(t, err)
	require.Len(t, result.Protocols, 1)
	assert.Equal(t, certDomain.CMS, result.Protocols[0].Protocol)

	_, ok := store.Snapshot().FindByFingerprint(pgpFpr)
	assert.False(t, ok)
	_, ok = store.Snapshot().FindByFingerprint(cmsFpr)
	assert.True(t, ok)
}

func TestRefreshController_KeepsNewerGroups(t *testing.T) {
	store := service.NewStore()
	groups := &fakeGroupSource{groups: []*groupsDomain.KeyGroup{{Name: "ops", Fingerprints: []string{pgpFpr}}}}
	// A group change is published while the pass is reading the old groups.
	groups.onList = func() {
		store.SetGroups([]*groupsDomain.KeyGroup{{Name: "dev", Fingerprints: []string{pgpFpr}}})
	}
	controller := NewRefreshController(RefreshConfig{}, newFakeLister(), groups, store, testLogger())
	defer func() { _ = controller.Close() }()

	_, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, store.Initialized())
	_, ok := store.Snapshot().Group("dev")
	assert.True(t, ok)
	_, ok = store.Snapshot().Group("ops")
	assert.False(t, ok)

	groups.onList = nil
	_, err = controller.Refresh(context.Background())
	require.NoError(t, err)
	_, ok = store.Snapshot().Group("ops")
	assert.True(t, ok, "a pass without concurrent changes publishes the loaded groups")
}

func TestRefreshController_Coalescing(t *testing.T) {
	lister := newFakeLister()
	lister.gate = make(chan struct{})

	store := service.NewStore()
	controller := NewRefreshController(
		RefreshConfig{Protocols: []certDomain.Protocol{certDomain.OpenPGP}},
		lister, nil, store, testLogger(),
	)
	defer func() { _ = controller.Close() }()

	first := controller.StartRefresh(context.Background())

	// Wait until the first pass is inside the engine.
	require.Eventually(t, func() bool { return lister.active.Load() == 2 }, time.Second, time.Millisecond)

	second := controller.StartRefresh(context.Background())
	third := controller.StartRefresh(context.Background())

	close(lister.gate)

	r1 := <-first
	r2 := <-second
	r3 := <-third

	assert.Equal(t, uint64(1), r1.Generation)
	assert.Equal(t, uint64(2), r2.Generation)
	assert.Equal(t, r2.Generation, r3.Generation)

	// Two passes with a public and a secret listing each.
	assert.Equal(t, int32(4), lister.calls.Load())
	assert.LessOrEqual(t, lister.maxSeen.Load(), int32(2), "passes must never overlap")
	assert.Equal(t, uint64(2), store.Generation())
}

func TestRefreshController_Subscribe(t *testing.T) {
	controller := NewRefreshController(RefreshConfig{}, newFakeLister(), nil, service.NewStore(), testLogger())
	defer func() { _ = controller.Close() }()

	var mu sync.Mutex
	var seen []uint64
	unsubscribe := controller.Subscribe(func(r domain.RefreshResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Generation)
	})

	_, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	unsubscribe()
	_, err = controller.Refresh(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1}, seen)
}

func TestRefreshController_GroupErrorKeepsPreviousGroups(t *testing.T) {
	store := service.NewStore()
	source := &fakeGroupSource{groups: []*groupsDomain.KeyGroup{{Name: "ops", Fingerprints: []string{pgpFpr}}}}
	controller := NewRefreshController(RefreshConfig{}, newFakeLister(), source, store, testLogger())
	defer func() { _ = controller.Close() }()

	_, err := controller.Refresh(context.Background())
	require.NoError(t, err)

	source.err = errors.New("database is down")
	result, err := controller.Refresh(context.Background())
	require.Error(t, err)
	assert.Error(t, result.GroupsErr)
	assert.Equal(t, 1, result.GroupCount)

	_, ok := store.Snapshot().Group("ops")
	assert.True(t, ok)
}

func TestRefreshController_Close(t *testing.T) {
	lister := newFakeLister()
	lister.gate = make(chan struct{})

	controller := NewRefreshController(
		RefreshConfig{Protocols: []certDomain.Protocol{certDomain.OpenPGP}},
		lister, nil, service.NewStore(), testLogger(),
	)

	running := controller.StartRefresh(context.Background())
	require.Eventually(t, func() bool { return lister.active.Load() == 2 }, time.Second, time.Millisecond)
	pending := controller.StartRefresh(context.Background())

	closed := make(chan struct{})
	go func() {
		_ = controller.Close()
		close(closed)
	}()

	r := <-pending
	assert.ErrorIs(t, r.Err, domain.ErrControllerClosed)

	close(lister.gate)
	<-closed

	r = <-running
	assert.NoError(t, r.Err)

	r = <-controller.StartRefresh(context.Background())
	assert.ErrorIs(t, r.Err, domain.ErrControllerClosed)

	assert.NoError(t, controller.Close())
}

func TestRefreshController_RefreshContextCanceled(t *testing.T) {
	lister := newFakeLister()
	lister.gate = make(chan struct{})
	controller := NewRefreshController(RefreshConfig{}, lister, nil, service.NewStore(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := controller.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(lister.gate)
	assert.NoError(t, controller.Close())
}

func TestMarkSecrets(t *testing.T) {
	public := []*certDomain.Certificate{
		pgpCert(pgpFpr, "alice@example.net"),
		cmsCert(cmsFpr, "carol@example.net"),
	}
	secretOnly := pgpCert("9999999999999999999999999999999999999999", "dave@example.net")

	flagged := pgpCert(pgpFpr, "alice@example.net")
	flagged.Subkeys[0].HasSecret = true

	result := markSecrets(public, []*certDomain.Certificate{flagged, secretOnly})

	require.Len(t, result, 3)
	assert.True(t, result[0].HasSecret)
	assert.True(t, result[0].Subkeys[0].HasSecret)
	assert.False(t, result[0].Subkeys[1].HasSecret, "only the flagged subkey has a secret")
	assert.False(t, result[1].HasSecret)
	assert.True(t, result[2].HasSecret)
}
