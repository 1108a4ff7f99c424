// Package app wires configuration into the store, lock, notifier and
// services shared by the API server and the cron runner.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/lock"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/notify"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/repository/memory"
	"mentorbook-backend/internal/repository/postgres"
	"mentorbook-backend/internal/service"
)

type App struct {
	Repos *repository.Repositories
	Tx    repository.TxManager

	Availability  service.AvailabilityService
	Bookings      service.BookingService
	Ledger        service.LedgerService
	NoShows       service.NoShowService
	Payouts       service.PayoutService
	Notifications service.NotificationService

	dispatcher *notify.Dispatcher
	closers    []func() error
}

// New connects the backing stores and builds every service. The notifier
// workers run until Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	locks := a.openLocks(ctx, cfg.Redis)

	channels, err := a.openChannels(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(a.Repos.Users, cfg.Notifier.Workers, cfg.Notifier.QueueSize, cfg.Notifier.MaxRetries, channels...)
	a.dispatcher.Start(ctx)

	var provider service.PayoutProvider = service.LoggingPayoutProvider{}
	if cfg.Payouts.ProviderURL != "" {
		provider = service.NewHTTPPayoutProvider(cfg.Payouts.ProviderURL, cfg.Payouts.ProviderAPIKey)
	}

	policy := cfg.Booking
	a.Ledger = service.NewLedgerService(a.Tx, a.Repos, policy.Currency, nil)
	a.Availability = service.NewAvailabilityService(a.Tx, a.Repos, policy, nil)
	a.Bookings = service.NewBookingService(a.Tx, a.Repos, a.Ledger, locks, a.dispatcher, policy, nil)
	a.NoShows = service.NewNoShowService(a.Tx, a.Repos, a.Ledger, a.dispatcher, policy, nil)
	a.Payouts = service.NewPayoutService(a.Tx, a.Repos, a.Ledger, provider, a.dispatcher, cfg.Payouts, policy.Currency, nil)
	a.Notifications = service.NewNotificationService(a.Repos.Notifications)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using the in-memory store; data is lost on exit")
		store := memory.NewStore()
		a.Repos, a.Tx = store.Repositories, store
		return nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db, cfg.Booking.MaxTxRetries)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	a.Repos, a.Tx = store.Repositories, store
	return nil
}

func (a *App) openLocks(ctx context.Context, cfg config.RedisConfig) lock.Service {
	if cfg.Addr == "" {
		logger.Info("No redis address configured, booking locks disabled")
		return lock.Noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		// Acquire fails open while redis is down, so startup continues.
		logger.Warn("Redis is unreachable", "addr", cfg.Addr, "error", err)
	} else {
		logger.Info("Redis connection established", "addr", cfg.Addr)
	}
	return lock.NewRedisService(client)
}

func (a *App) openChannels(ctx context.Context, cfg *config.Config) ([]notify.Channel, error) {
	channels := []notify.Channel{notify.NewInboxChannel(a.Repos.Notifications)}

	if cfg.SendGrid.APIKey != "" {
		channels = append(channels, notify.NewEmailChannel(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName))
	}
	if cfg.Firebase.CredentialsFile != "" {
		push, err := notify.NewPushChannel(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize push channel: %w", err)
		}
		channels = append(channels, push)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		events, err := notify.NewEventChannel(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event channel: %w", err)
		}
		a.closers = append(a.closers, events.Close)
		channels = append(channels, events)
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	logger.Info("Notification channels enabled", "channels", names)
	return channels, nil
}

// Close drains queued notifications and releases connections.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Error during shutdown", "error", err)
		}
	}
	a.closers = nil
}
