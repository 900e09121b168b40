package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/internal/config"
)

const (
	migrationsTable   = "session_schema_migrations"
	defaultMigrations = "./assets/migrations"
)

// RunMigrations creates the session_entries table when the postgres driver is selected
// and migrations are enabled. A dirty schema version stops startup.
func RunMigrations(cfg *config.Config, logger *zap.Logger) error {
	if cfg == nil || !cfg.Migrations.Enabled || cfg.Session.DurableDriver != config.DriverPostgres {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sourceURL, err := migrationSource(cfg.Migrations.Path)
	if err != nil {
		return err
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if dirty {
		return fmt.Errorf("session schema version %d is dirty, fix %s manually", version, migrationsTable)
	}

	logger.Info("session schema migrated",
		zap.String("source", sourceURL),
		zap.String("table", migrationsTable),
		zap.Uint("version", version))
	return nil
}

// migrationSource resolves the migrations directory to a file:// URL and checks that it
// holds the session_entries migration.
func migrationSource(path string) (string, error) {
	if path == "" {
		path = defaultMigrations
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("migrations path %s is not a directory", abs)
	}
	matches, err := filepath.Glob(filepath.Join(abs, "*_session_entries.up.sql"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no session_entries migration in %s", abs)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
