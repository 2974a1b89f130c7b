package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/pointline/pointline-api/internal/config"
	"github.com/pointline/pointline-api/internal/pkg/logger"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := migrateAll(cfg); err != nil {
		log.Error().Err(err).Msg("Migration run failed")
		os.Exit(1)
	}
	log.Info().Msg("Migration run finished")
}

func migrateAll(cfg *config.Config) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db, baseFS, "migrations", postgres.DefaultMigrationsTable); err != nil {
		return fmt.Errorf("base migrations: %w", err)
	}
	log.Info().Msg("Base migrations applied")

	if cfg.IsDevelopment() {
		// seeds keep their own version table so they never collide with schema versions
		if err := runMigrations(db, devFS, "test_data", "schema_seed_migrations"); err != nil {
			return fmt.Errorf("dev seed migrations: %w", err)
		}
		log.Info().Msg("Dev seed migrations applied")
	}
	return nil
}

func runMigrations(db *sql.DB, fsys embed.FS, dir, table string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("up: %w", err)
	}
	return nil
}
