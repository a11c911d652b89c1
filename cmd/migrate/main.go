package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/noah-isme/crams-api/migrations"
	"github.com/noah-isme/crams-api/pkg/config"
	"github.com/noah-isme/crams-api/pkg/database"
	"github.com/noah-isme/crams-api/pkg/logger"
)

const usage = "usage: migrate up | down | version | force <version>"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	m, err := migrations.New(db)
	if err != nil {
		logr.Fatal("failed to init migrator", zap.Error(err))
	}

	if err := run(m, os.Args[1:]); err != nil {
		logr.Fatal("migration failed", zap.String("command", os.Args[1]), zap.Error(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logr.Fatal("failed to read schema version", zap.Error(err))
	}
	logr.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Down())
	case "version":
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.Force(version)
	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
