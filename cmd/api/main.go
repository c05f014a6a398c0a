// Package main provides the entry point for the portal API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/narvanalabs/fleet-portal/internal/api"
	"github.com/narvanalabs/fleet-portal/internal/booking"
	"github.com/narvanalabs/fleet-portal/internal/cipher"
	"github.com/narvanalabs/fleet-portal/internal/functions"
	"github.com/narvanalabs/fleet-portal/internal/metrics"
	"github.com/narvanalabs/fleet-portal/internal/onboarding"
	"github.com/narvanalabs/fleet-portal/internal/secrets"
	"github.com/narvanalabs/fleet-portal/internal/shutdown"
	"github.com/narvanalabs/fleet-portal/internal/store"
	"github.com/narvanalabs/fleet-portal/internal/store/firestore"
	"github.com/narvanalabs/fleet-portal/internal/store/memory"
	"github.com/narvanalabs/fleet-portal/internal/store/mongo"
	pgstore "github.com/narvanalabs/fleet-portal/internal/store/postgres"
	"github.com/narvanalabs/fleet-portal/internal/vanity"
	"github.com/narvanalabs/fleet-portal/internal/verification"
	"github.com/narvanalabs/fleet-portal/pkg/config"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat != "text")
	os.Exit(run(cfg, log.Logger))
}

func run(cfg *config.Config, log *slog.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open record store", "backend", cfg.Store.Backend, "error", err)
		return 1
	}
	coordinator.Register(shutdown.NewCloserComponent("store", records))

	if cfg.Store.SeedFile != "" {
		if err := seedStore(ctx, records, cfg.Store.SeedFile, log); err != nil {
			log.Error("failed to seed record store", "file", cfg.Store.SeedFile, "error", err)
			records.Close()
			return 1
		}
	}

	backend, err := openSecretBackend(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open secret backend", "backend", cfg.Secrets.Backend, "error", err)
		records.Close()
		return 1
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		coordinator.Register(shutdown.NewCloserComponent("secrets", closer))
	}

	provider := secrets.NewProvider(backend, log,
		secrets.WithTimeout(cfg.Secrets.Timeout),
		secrets.WithObserver(m),
	)
	c := cipher.New(cipher.KeySourceFunc(provider.SecretKey(cfg.Secrets.CipherKeyName, cfg.Secrets.CipherKeyVersion)), log)

	fn := functions.NewClient(&functions.Config{
		BaseURL: cfg.Functions.BaseURL,
		Timeout: cfg.Functions.Timeout,
	}, m, log)
	if cfg.Functions.BaseURL == "" {
		log.Warn("FUNCTIONS_BASE_URL not set, register and inquire will fail")
	}

	server := api.NewServer(cfg, api.Deps{
		Bookings:     booking.NewService(&booking.Config{Timeout: cfg.Store.Timeout}, records, c, m, log),
		Onboarding:   onboarding.NewService(fn, nil, log),
		Verification: verification.NewService(nil, log),
		Vanity:       vanity.NewService(records, cfg.Store.Timeout, log),
		Store:        records,
		Gatherer:     reg,
		Metrics:      m,
	}, log)
	coordinator.Register(shutdown.NewServerComponent("api", server))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	go coordinator.WaitForSignal(ctx)

	if err := <-errCh; err != nil {
		log.Error("server error", "error", err)
		cancel()
		coordinator.Wait()
		return 1
	}

	coordinator.Wait()
	log.Info("server stopped")
	return coordinator.ExitCode()
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.RecordStore, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		return pgstore.New(ctx, pgstore.DefaultConfig(cfg.Store.DatabaseDSN), log)
	case config.StoreMongo:
		return mongo.New(ctx, mongo.Config{URI: cfg.Store.MongoURI, Database: cfg.Store.MongoDatabase}, log)
	case config.StoreFirestore:
		return firestore.New(ctx, firestore.Config{
			ProjectID:       cfg.Store.FirestoreProjectID,
			CredentialsJSON: cfg.Secrets.CredentialsJSON,
		}, log)
	case config.StoreMemory:
		log.Warn("using in-memory record store, data is not persisted")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func seedStore(ctx context.Context, records store.RecordStore, path string, log *slog.Logger) error {
	seeder, ok := records.(store.Seeder)
	if !ok {
		log.Warn("record store does not support seeding, skipping fixtures", "file", path)
		return nil
	}
	fx, err := store.LoadFixtures(path)
	if err != nil {
		return err
	}
	if err := seeder.Seed(ctx, fx); err != nil {
		return err
	}
	log.Info("record store seeded", "file", path, "collections", len(fx))
	return nil
}

// openSecretBackend returns nil for the "none" backend, leaving the
// environment as the only secret source.
func openSecretBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (secrets.Backend, error) {
	switch cfg.Secrets.Backend {
	case config.SecretsGCP:
		return secrets.NewGCPBackend(ctx, secrets.GCPConfig{
			ProjectID:       cfg.Secrets.GCPProjectID,
			CredentialsJSON: cfg.Secrets.CredentialsJSON,
		}, log)
	case config.SecretsAgeFile:
		return secrets.NewAgeFileBackend(secrets.AgeFileConfig{
			Path:     cfg.Secrets.File,
			Identity: cfg.Secrets.AgeIdentity,
		}, log)
	case config.SecretsNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown secret backend %q", cfg.Secrets.Backend)
	}
}
