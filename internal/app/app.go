// Package app wires configuration into a running scheduler. Both the HTTP
// server and the cronjob runner build their dependencies here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sendgrid/sendgrid-go"

	"equipment-scheduler/internal/config"
	"equipment-scheduler/internal/events"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/repository"
	"equipment-scheduler/internal/repository/memory"
	"equipment-scheduler/internal/repository/postgres"
	"equipment-scheduler/internal/service"
)

// App holds the long-lived dependencies. Close releases them in reverse
// order of creation.
type App struct {
	Config    *config.Config
	Store     repository.Store
	Publisher events.Publisher
	Scheduler service.SchedulerService

	closers []func() error
}

// New connects the store and event sinks described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	pub, err := a.openPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Publisher = pub

	a.Scheduler = service.NewSchedulerService(store, pub, SchedulerOptions(cfg)...)
	return a, nil
}

// SchedulerOptions translates the scheduling and rfid sections of cfg.
func SchedulerOptions(cfg *config.Config) []service.Option {
	var policies []service.RequestPolicy
	if limit := cfg.Scheduling.MaxReservation(); limit > 0 {
		policies = append(policies, service.MaxDurationPolicy{Max: limit})
	}
	if cfg.Scheduling.RejectPastStart {
		policies = append(policies, service.FutureStartPolicy{Grace: cfg.Scheduling.PastStartGrace()})
	}

	return []service.Option{
		service.WithPolicies(policies...),
		service.WithReaders(cfg.RFID.Readers),
		service.WithMaintenancePredicate(service.NextMaintenanceWithin(cfg.Scheduling.MaintenanceLead())),
		service.WithReturnReminderLead(cfg.Scheduling.ReturnReminderLead()),
	}
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config
	if cfg.Store.Type == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	var opts []postgres.Option
	if cfg.Database.LockTimeoutMs > 0 {
		opts = append(opts, postgres.WithLockTimeout(time.Duration(cfg.Database.LockTimeoutMs)*time.Millisecond))
	}
	return postgres.NewStore(db, opts...), nil
}

func (a *App) openPublisher(ctx context.Context) (events.Publisher, error) {
	cfg := a.Config
	fanout := events.Fanout{events.LogPublisher{}}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Publishing events to redis stream", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
		fanout = append(fanout, events.NewRedisPublisher(client, cfg.Redis.Stream, cfg.Redis.StreamMaxLen))
	}

	if cfg.Email.SendGridAPIKey != "" {
		logger.Info("Mailing staff alerts", "recipients", len(cfg.Email.StaffRecipients))
		fanout = append(fanout, events.NewMailPublisher(
			sendgrid.NewSendClient(cfg.Email.SendGridAPIKey),
			cfg.Email.FromEmail,
			cfg.Email.FromName,
			cfg.Email.StaffRecipients,
			cfg.Email.MailedEvents(),
		))
	}

	return fanout, nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
