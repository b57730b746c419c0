package main

import (
	"database/sql"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mudamail/internal/config"
	"mudamail/internal/logging"
)

func main() {
	cfg := config.LoadMigrate()
	logging.Init("migrate", cfg.LogFormat)

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	m, err := newMigrator(cfg)
	if err != nil {
		slog.Error("migrator init failed", "err", err)
		os.Exit(1)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			slog.Error("migration failed", "err", err)
			os.Exit(1)
		}
		slog.Info("migrations applied")
	case "down":
		if err := m.Steps(-1); err != nil {
			slog.Error("rollback failed", "err", err)
			os.Exit(1)
		}
		slog.Info("rolled back one migration")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && err != migrate.ErrNilVersion {
			slog.Error("version lookup failed", "err", err)
			os.Exit(1)
		}
		if err == migrate.ErrNilVersion {
			slog.Info("no migrations applied yet")
			return
		}
		slog.Info("migration state", "version", version, "dirty", dirty)
	default:
		slog.Error("unknown command", "command", command)
		os.Exit(1)
	}
}

func newMigrator(cfg config.MigrateConfig) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, err
	}
	return migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "pgx", driver)
}
