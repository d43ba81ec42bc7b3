package app

import (
	"fmt"

	certDomain "github.com/allisson/keycache/internal/certificate/domain"
	"github.com/allisson/keycache/internal/config"
	"github.com/allisson/keycache/internal/engine/gnupg"
	"github.com/allisson/keycache/internal/engine/keyring"
	"github.com/allisson/keycache/internal/keycache/service"
	"github.com/allisson/keycache/internal/metrics"
	keycacheUseCase "github.com/allisson/keycache/internal/keycache/usecase"
	resolverService "github.com/allisson/keycache/internal/resolver/service"
	resolverUseCase "github.com/allisson/keycache/internal/resolver/usecase"
)

// Store returns the in-memory certificate store.
func (c *Container) Store() *service.Store {
	c.storeInit.Do(func() {
		c.store = service.NewStore()
	})
	return c.store
}

// KeyLister returns the key-listing engine selected by KEY_SOURCE.
func (c *Container) KeyLister() (keycacheUseCase.KeyLister, error) {
	var err error
	c.keyListerInit.Do(func() {
		c.keyLister, err = c.initKeyLister()
		if err != nil {
			c.initErrors["keyLister"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyLister"]; exists {
		return nil, storedErr
	}
	return c.keyLister, nil
}

// RefreshUseCase returns the refresh controller wrapped with metrics.
func (c *Container) RefreshUseCase() (keycacheUseCase.RefreshUseCase, error) {
	var err error
	c.refreshUseCaseInit.Do(func() {
		c.refreshUseCase, err = c.initRefreshUseCase()
		if err != nil {
			c.initErrors["refreshUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["refreshUseCase"]; exists {
		return nil, storedErr
	}
	return c.refreshUseCase, nil
}

// KeyringWatcher returns the watcher that refreshes the cache on keyring
// changes and on the configured interval.
func (c *Container) KeyringWatcher() (*keycacheUseCase.KeyringWatcher, error) {
	var err error
	c.keyringWatcherInit.Do(func() {
		c.keyringWatcher, err = c.initKeyringWatcher()
		if err != nil {
			c.initErrors["keyringWatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyringWatcher"]; exists {
		return nil, storedErr
	}
	return c.keyringWatcher, nil
}

// ResolverUseCase returns the key resolution use case wrapped with metrics.
func (c *Container) ResolverUseCase() (resolverUseCase.ResolverUseCase, error) {
	var err error
	c.resolverUseCaseInit.Do(func() {
		c.resolverUseCase, err = c.initResolverUseCase()
		if err != nil {
			c.initErrors["resolverUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["resolverUseCase"]; exists {
		return nil, storedErr
	}
	return c.resolverUseCase, nil
}

// cacheStats feeds the cache gauges from the current snapshot.
func (c *Container) cacheStats() metrics.CacheStats {
	snapshot := c.Store().Snapshot()

	counts := make(map[string]int64)
	for protocol, count := range snapshot.CountByProtocol() {
		counts[protocol.String()] = int64(count)
	}
	return metrics.CacheStats{
		Generation:   snapshot.Generation(),
		Certificates: counts,
		Groups:       int64(len(snapshot.Groups())),
	}
}

func (c *Container) initKeyLister() (keycacheUseCase.KeyLister, error) {
	logger := c.Logger()

	switch c.config.KeySource {
	case config.KeySourceGnuPG, "":
		return gnupg.NewLister(gnupg.Config{
			GPGPath:   c.config.GPGPath,
			GPGSMPath: c.config.GPGSMPath,
			HomeDir:   c.config.GnuPGHome,
			Timeout:   c.config.EngineTimeout,
		}, logger), nil
	case config.KeySourceKeyring:
		return keyring.NewLister(keyring.Config{
			OpenPGPFiles:        c.config.KeyringOpenPGPFiles,
			CMSFiles:            c.config.KeyringCMSFiles,
			TrustedFingerprints: c.config.TrustedFingerprints,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported key source: %s", c.config.KeySource)
	}
}

func (c *Container) initRefreshUseCase() (keycacheUseCase.RefreshUseCase, error) {
	protocols, err := certDomain.ParseProtocols(c.config.RefreshProtocols)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh protocols %v: %w", c.config.RefreshProtocols, err)
	}

	lister, err := c.KeyLister()
	if err != nil {
		return nil, fmt.Errorf("failed to get key lister for refresh use case: %w", err)
	}

	// A nil repository must reach the controller as a nil interface.
	var groups keycacheUseCase.GroupSource
	if c.config.GroupsEnabled {
		repo, err := c.KeyGroupRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get key group repository for refresh use case: %w", err)
		}
		groups = repo
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for refresh use case: %w", err)
	}

	controller := keycacheUseCase.NewRefreshController(
		keycacheUseCase.RefreshConfig{
			Protocols:     protocols,
			EngineTimeout: c.config.EngineTimeout,
		},
		lister,
		groups,
		c.Store(),
		c.Logger(),
	)
	return keycacheUseCase.NewRefreshUseCaseWithMetrics(controller, businessMetrics), nil
}

func (c *Container) initKeyringWatcher() (*keycacheUseCase.KeyringWatcher, error) {
	refreshUseCase, err := c.RefreshUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh use case for keyring watcher: %w", err)
	}

	return keycacheUseCase.NewKeyringWatcher(
		keycacheUseCase.WatcherConfig{
			Paths:    c.config.WatchPaths(),
			Interval: c.config.RefreshInterval,
			Throttle: c.config.RefreshThrottle,
		},
		refreshUseCase,
		c.Logger(),
	), nil
}

func (c *Container) initResolverUseCase() (resolverUseCase.ResolverUseCase, error) {
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for resolver use case: %w", err)
	}

	useCase := resolverUseCase.NewResolverUseCase(c.Store(), resolverService.NewPolicyEngine(), c.Logger())
	return resolverUseCase.NewResolverUseCaseWithMetrics(useCase, businessMetrics), nil
}
