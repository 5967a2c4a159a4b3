package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/api"
	"github.com/ignite/outreach/internal/archive"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/notify"
	"github.com/ignite/outreach/internal/pkg/breaker"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/service/pipeline"
	"github.com/ignite/outreach/internal/service/queue"
	"github.com/ignite/outreach/internal/service/tracker"
	"github.com/ignite/outreach/internal/template"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

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
	log.Println("Starting Outreach Delivery Server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
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

	// Redis is optional; without it the scheduler lock falls back to
	// Postgres advisory locks and the health check skips the probe.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rCtx, rCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(rCtx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable, continuing without it: %v", err)
			rdb.Close()
			rdb = nil
		}
		rCancel()
		if rdb != nil {
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
			defer rdb.Close()
		}
	}

	// Repositories
	queueRepo := postgres.NewQueueRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	historyRepo := postgres.NewHistoryRepo(db)

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

	// Services
	queueSvc := queue.NewService(queueRepo, client, brk, template.NewEngine(), eventRepo, queue.Config{
		MaxRetries:            cfg.Queue.MaxRetries,
		BaseDelay:             time.Duration(cfg.Queue.BaseDelaySeconds) * time.Second,
		MaxDelay:              time.Duration(cfg.Queue.MaxDelaySeconds) * time.Second,
		BackoffMultiplier:     cfg.Queue.BackoffMultiplier,
		ResetBounceRetryCount: cfg.Queue.ResetBounceRetries(),
	})
	trackerSvc := tracker.NewService(leadRepo, historyRepo)

	// Outbound status-change notifier
	var notifier *notify.Notifier
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notify.New(nil, notify.Config{
			URL:         cfg.Notify.WebhookURL,
			Secret:      cfg.Notify.Secret,
			Timeout:     cfg.Notify.Timeout(),
			MaxAttempts: cfg.Notify.MaxRetries,
		})
		trackerSvc.SubscribeAll(notifier.HandleStatusChange)
		log.Printf("Status-change notifier enabled: %s", cfg.Notify.WebhookURL)
	}

	// Raw payload archive
	var archiver pipeline.Archiver
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		a, err := archive.New(context.Background(), cfg.Archive.S3Bucket, cfg.Archive.S3Prefix,
			cfg.Archive.AWSRegion, cfg.Archive.GetAWSProfile())
		if err != nil {
			log.Printf("Warning: payload archive disabled: %v", err)
		} else {
			archiver = a
			log.Printf("Payload archive enabled: s3://%s/%s", cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
		}
	}

	pipe := pipeline.NewService(client, eventRepo, trackerSvc, queueSvc, archiver, pipeline.Config{
		BounceStatus:    domain.LeadStatus(cfg.Pipeline.BounceStatus),
		ComplaintStatus: domain.LeadStatus(cfg.Pipeline.ComplaintStatus),
		ReplyStatus:     domain.LeadStatus(cfg.Pipeline.ReplyStatus),
		BookingKeywords: cfg.Pipeline.BookingKeywords,
	})

	// API server. Only the configured provider's webhook path is wired;
	// the other returns 404.
	providerKind := cfg.Provider.Kind
	if providerKind == "" {
		providerKind = "resend"
	}
	handlers := api.NewHandlers(queueSvc, trackerSvc, map[string]*pipeline.Service{providerKind: pipe}, cfg.Queue)
	checker := api.NewHealthChecker(db, rdb, queueSvc.BreakerState)
	server := api.NewServer(handlers, checker)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Drain any in-flight status-change deliveries before exiting.
	if notifier != nil {
		notifier.Flush()
	}

	log.Println("Server stopped")
}
