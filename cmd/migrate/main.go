package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, version, force")
	steps := flag.Int("steps", 0, "Migrations to roll back (down) or version to record (force)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	logger := config.NewLoggerTo(os.Stderr, cfg.Environment)

	db, err := database.OpenSQL(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}

	// the migrator owns db from here and closes it
	migrator, err := database.NewMigrator(db, cfg.DatabaseName)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return err
		}

	case "down":
		if err := migrator.Down(*steps); err != nil {
			return err
		}

	case "version":

	case "force":
		if *steps <= 0 {
			return errors.New("-steps must name the version to force")
		}
		if err := migrator.Force(*steps); err != nil {
			return err
		}

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	status, err := migrator.Status()
	if err != nil {
		return err
	}
	logger.Info("schema status",
		slog.String("action", *action),
		slog.String("database", cfg.DatabaseName),
		slog.String("status", status.String()),
	)
	return nil
}
