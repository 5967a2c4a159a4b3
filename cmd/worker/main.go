package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/pkg/breaker"
	"github.com/ignite/outreach/internal/pkg/distlock"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/scheduler"
	"github.com/ignite/outreach/internal/service/queue"
)

// buildProviderClient constructs the configured email transport adapter.
func buildProviderClient(cfg config.ProviderConfig) (provider.EmailClient, error) {
	switch cfg.Kind {
	case "resend", "":
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend provider selected but RESEND_API_KEY is empty")
		}
		return provider.NewResendClient(
			cfg.Resend.APIKey,
			cfg.Resend.BaseURL,
			cfg.Resend.WebhookSecret,
			cfg.Resend.Timeout(),
		), nil
	case "ses":
		return provider.NewSESClient(
			cfg.SES.AccessKey,
			cfg.SES.SecretKey,
			cfg.SES.Region,
			cfg.SES.ConfigSet,
		), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q (want resend or ses)", cfg.Kind)
	}
}

func main() {
	log.Println("Starting Outreach Delivery Worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	// Redis is optional; the sweep locks fall back to Postgres advisory
	// locks when it is absent.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rCtx, rCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(rCtx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable, falling back to advisory locks: %v", err)
			rdb.Close()
			rdb = nil
		}
		rCancel()
		if rdb != nil {
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
			defer rdb.Close()
		}
	}

	// Email provider
	client, err := buildProviderClient(cfg.Provider)
	if err != nil {
		log.Fatalf("Failed to build provider client: %v", err)
	}
	log.Printf("Email provider: %s", client.Name())

	brk := breaker.New(breaker.Config{
		Name:             client.Name(),
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSeconds) * time.Second,
	})

	// The worker only drains the queue; rendering happened at enqueue time,
	// so no template engine is wired here.
	queueRepo := postgres.NewQueueRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	queueSvc := queue.NewService(queueRepo, client, brk, nil, eventRepo, queue.Config{
		MaxRetries:            cfg.Queue.MaxRetries,
		BaseDelay:             time.Duration(cfg.Queue.BaseDelaySeconds) * time.Second,
		MaxDelay:              time.Duration(cfg.Queue.MaxDelaySeconds) * time.Second,
		BackoffMultiplier:     cfg.Queue.BackoffMultiplier,
		ResetBounceRetryCount: cfg.Queue.ResetBounceRetries(),
	})

	lockTTL := cfg.Scheduler.LockTTL()
	sched := scheduler.New(queueSvc,
		func(name string) distlock.Locker { return distlock.New(rdb, db, name, lockTTL) },
		scheduler.Config{
			PendingInterval:  cfg.Scheduler.PendingInterval(),
			RetryInterval:    cfg.Scheduler.RetryInterval(),
			BounceRetryHour:  cfg.Scheduler.BounceRetryHourUTC,
			CleanupHour:      cfg.Scheduler.CleanupHourUTC,
			LockTTL:          lockTTL,
			BatchSize:        cfg.Queue.BatchSize,
			BounceMaxAgeDays: cfg.Queue.BounceRetryMaxAgeDays,
			RetentionDays:    cfg.Queue.RetentionDays,
		})

	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	sched.Stop()
	log.Println("Worker stopped")
}
