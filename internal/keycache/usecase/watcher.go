package usecase

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/boz/go-throttle"
	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds keyring watcher configuration.
type WatcherConfig struct {
	Paths    []string      // Directories or files to watch; empty disables file watching
	Interval time.Duration // Periodic refresh interval, zero disables it
	Throttle time.Duration // Minimum time between two change-triggered refreshes
}

// keyringFiles are the file names whose changes alter key listings.
var keyringFiles = []string{
	"pubring.kbx",
	"pubring.gpg",
	"secring.gpg",
	"trustdb.gpg",
	"private-keys-v1.d",
}

// KeyringWatcher triggers refreshes when keyring files change and on a fixed
// interval.
type KeyringWatcher struct {
	config    WatcherConfig
	refresher Refresher
	logger    *slog.Logger
}

// NewKeyringWatcher creates a KeyringWatcher.
func NewKeyringWatcher(config WatcherConfig, refresher Refresher, logger *slog.Logger) *KeyringWatcher {
	if config.Throttle <= 0 {
		config.Throttle = time.Second
	}
	return &KeyringWatcher{
		config:    config,
		refresher: refresher,
		logger:    logger,
	}
}

// Start runs the watch loop until ctx is canceled.
func (w *KeyringWatcher) Start(ctx context.Context) error {
	w.logger.Info("starting keyring watcher",
		slog.Any("paths", w.config.Paths),
		slog.Duration("interval", w.config.Interval),
		slog.Duration("throttle", w.config.Throttle),
	)

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if len(w.config.Paths) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()

		for _, path := range w.config.Paths {
			if err := watcher.Add(path); err != nil {
				return err
			}
		}
		events = watcher.Events
		watchErrors = watcher.Errors
	}

	trigger := throttle.ThrottleFunc(w.config.Throttle, true, func() {
		w.refresher.StartRefresh(ctx)
	})
	defer trigger.Stop()

	var tick <-chan time.Time
	if w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping keyring watcher")
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if relevant(event) {
				w.logger.Debug("keyring changed", slog.String("path", event.Name), slog.String("op", event.Op.String()))
				trigger.Trigger()
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			w.logger.Error("keyring watcher error", slog.Any("error", err))
		case <-tick:
			w.refresher.StartRefresh(ctx)
		}
	}
}

// relevant reports whether event touches a keyring, a trust database or a
// certificate bundle. Lock files and chmod-only events are ignored.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") || strings.HasPrefix(base, ".#") {
		return false
	}
	for _, name := range keyringFiles {
		if base == name || strings.Contains(event.Name, string(filepath.Separator)+name+string(filepath.Separator)) {
			return true
		}
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".kbx", ".gpg", ".asc", ".pem", ".crt", ".key":
		return true
	}
	return false
}
