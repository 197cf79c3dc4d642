// TaskVault - credential and session lifecycle service
//
// This is the main entry point for the TaskVault application: a
// self-contained, single-tenant account, session, and todo backend with
// JWT access tokens, rotating refresh tokens held in a durable allow-list,
// role-based admin controls, and an append-only audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/taskvault/taskvault/migrations"

	"github.com/taskvault/taskvault/internal/api"
	"github.com/taskvault/taskvault/internal/audit"
	"github.com/taskvault/taskvault/internal/auth"
	"github.com/taskvault/taskvault/internal/infrastructure/config"
	"github.com/taskvault/taskvault/internal/infrastructure/database"
	"github.com/taskvault/taskvault/internal/infrastructure/logging"
	"github.com/taskvault/taskvault/internal/todo"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TaskVault",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Wire repositories
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	todoRepo := todo.NewRepository(db.DB)
	auditRec := audit.NewRecorder(db.DB)

	// First boot: create an admin account if the user table is empty.
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	issuer := auth.NewIssuer(
		cfg.Security.JWT.Secret,
		cfg.AccessTokenTTL(),
		cfg.RefreshTokenTTL(),
	)

	// The coordinator executes user deletion as one transaction: the
	// account, its todos, and its refresh tokens go together.
	coordinator := auth.NewCoordinator(db.DB, todoRepo)

	// Start API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Issuer:      issuer,
		Users:       userRepo,
		Tokens:      tokenRepo,
		Todos:       todoRepo,
		Audit:       auditRec,
		Coordinator: coordinator,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	log.Info("TaskVault stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TASKVAULT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TASKVAULT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
