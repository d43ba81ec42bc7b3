package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrateOptions selects the migration direction. Steps is only used when
// Down is set: zero reverts everything.
type MigrateOptions struct {
	Down  bool
	Steps int
}

func migrationsSource(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "file://migrations/postgresql", nil
	case "mysql":
		return "file://migrations/mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// RunMigrations applies or reverts the key group schema. Nothing to do is
// not an error.
func RunMigrations(logger *slog.Logger, driver, connectionString string, opts MigrateOptions) error {
	if opts.Steps < 0 {
		return errors.New("steps must not be negative")
	}
	source, err := migrationsSource(driver)
	if err != nil {
		return err
	}

	m, err := migrate.New(source, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	switch {
	case !opts.Down:
		logger.Info("applying database migrations", slog.String("driver", driver))
		err = m.Up()
	case opts.Steps > 0:
		logger.Info("reverting database migrations", slog.String("driver", driver), slog.Int("steps", opts.Steps))
		err = m.Steps(-opts.Steps)
	default:
		logger.Info("reverting all database migrations", slog.String("driver", driver))
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("migrations completed, schema is empty")
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	default:
		logger.Info("migrations completed", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}
