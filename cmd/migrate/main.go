package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/loanlens/internal/config"
	"github.com/liamcoop/loanlens/internal/logger"
)

func main() {
	var configPath string
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&configPath, "config", "", "Path to config.yaml")
	flag.StringVar(&databaseURL, "database", "", "Database URL (default: database.url from config, LOANLENS_DATABASE_URL or DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: database.migrations from config)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.SampleRate); err != nil {
		logger.Fatal("invalid log settings", "error", err)
	}

	if databaseURL == "" {
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required: use -database, database.url in config, or DATABASE_URL")
	}

	source := cfg.Database.Migrations
	if migrationsPath != "" {
		source = "file://" + migrationsPath
	}
	if !strings.Contains(source, "://") {
		source = "file://" + source
	}

	logger.Info("connecting to database", "migrations", source)

	// Create migration instance
	m, err := migrate.New(source, databaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	// Execute command
	switch command {
	case "up":
		logger.Info("running migrations up")
		err = m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to run migrations", "error", err)
		}
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
		} else {
			logger.Info("migrations completed")
		}

	case "down":
		logger.Info("rolling back migrations")
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback completed")

	case "steps":
		n, err := intArg("steps")
		if err != nil {
			logger.Fatal("invalid step count", "error", err)
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to apply steps", "steps", n, "error", err)
		}
		logger.Info("steps applied", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migration applied yet")
			return
		}
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		version, err := intArg("force")
		if err != nil {
			logger.Fatal("invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err)
		}
		logger.Info("forced version", "version", version)

	default:
		logger.Fatal("unknown command (use: up, down, steps, version, force)", "command", command)
	}
}

// intArg reads the integer positional argument of a command, e.g. -command force 3
func intArg(command string) (int, error) {
	if flag.NArg() < 1 {
		return 0, fmt.Errorf("%s requires a number: -command %s <n>", command, command)
	}
	var n int
	if _, err := fmt.Sscanf(flag.Arg(0), "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}
