package app

import (
	"context"
	"fmt"
	"net/http"

	"payment-engine/internal/config"
	"payment-engine/internal/database"
	"payment-engine/internal/events"
	"payment-engine/internal/gateway"
	"payment-engine/internal/lock"
	"payment-engine/internal/logger"
	"payment-engine/internal/repository"
	"payment-engine/internal/services"
)

// App holds the wired services shared by the API server and the worker.
type App struct {
	Config       *config.Config
	Store        repository.TransactionStore
	Gateways     *gateway.Registry
	Transactions *services.TransactionService
	Receipts     *services.ReceiptService
	Reports      *services.ReconciliationService

	closers []func() error
}

// New connects the store, lock backend and event publisher selected by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var creds gateway.CredentialSource
	if cfg.UsesMemoryStore() {
		mem := repository.NewMemoryStore()
		a.Store, creds = mem, mem
		logger.Logger.Warn().Msg("Using in-memory transaction store")
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		gormStore := repository.NewGormStore(db)
		a.Store, creds = gormStore, gormStore
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
	}

	gateways, err := gateway.Build(gateway.Options{
		Enabled:        cfg.Gateways,
		SandboxEnabled: cfg.SandboxEnabled,
		SandboxSecret:  cfg.SandboxSecret,
		CallbackURL:    cfg.CallbackURL,
		Client:         &http.Client{Timeout: cfg.GatewayTimeout},
	}, creds)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Gateways = gateways

	locker, err := a.locker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.publisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Transactions = services.NewTransactionService(a.Store, gateways, locker, publisher, cfg.GatewayTimeout)
	a.Receipts = services.NewReceiptService(a.Store, cfg.ReceiptBaseURL)
	a.Reports = services.NewReconciliationService(a.Store)

	logger.Logger.Info().Strs("gateways", gateways.Names()).Msg("Services initialized")
	return a, nil
}

func (a *App) locker(ctx context.Context) (lock.Locker, error) {
	if a.Config.LockBackend != "redis" {
		return lock.NewLocalLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client, a.Config.LockTTL), nil
}

func (a *App) publisher() (events.Publisher, error) {
	if len(a.Config.KafkaBrokers) == 0 {
		return events.NoopPublisher{}, nil
	}
	p, err := events.NewKafkaPublisher(a.Config.KafkaBrokers, a.Config.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	logger.Logger.Info().Strs("brokers", a.Config.KafkaBrokers).Str("topic", a.Config.KafkaTopic).Msg("Kafka publisher connected")
	return p, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
