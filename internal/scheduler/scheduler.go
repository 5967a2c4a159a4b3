// Package scheduler drives the recurring queue sweeps: the pending send
// sweep, the retry sweep, the daily bounce retry, and retention cleanup.
// Every sweep runs under a distributed lock so exactly one instance drives
// the queue at a time; the others skip the cycle.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/distlock"
)

// QueueProcessor is the queue surface the sweeps invoke. queue.Service
// satisfies this.
type QueueProcessor interface {
	ProcessPendingQueue(ctx context.Context, limit int) (*domain.BatchResult, error)
	ProcessRetryQueue(ctx context.Context, limit int) (*domain.BatchResult, error)
	ProcessDailyBounceRetry(ctx context.Context, maxAgeDays, limit int) (*domain.BatchResult, error)
	PurgeOld(ctx context.Context, days int) (int, error)
}

// LockFactory builds one named lock per sweep invocation.
type LockFactory func(name string) distlock.Locker

// Config controls sweep cadence and batch sizing. Zero values fall back to
// the defaults in New.
type Config struct {
	PendingInterval  time.Duration
	RetryInterval    time.Duration
	BounceRetryHour  int // UTC hour of the daily bounce retry
	CleanupHour      int // UTC hour of the daily retention purge
	LockTTL          time.Duration
	BatchSize        int
	BounceMaxAgeDays int
	RetentionDays    int
}

// Scheduler owns the sweep goroutines.
type Scheduler struct {
	queue   QueueProcessor
	newLock LockFactory
	cfg     Config
	now     func() time.Time

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. Defaults: 30s pending sweep, 60s retry sweep,
// bounce retry at 08:00 UTC, cleanup at 03:00 UTC, 5m lock TTL, batches of
// 50, 7-day bounce retry window, 90-day retention.
func New(queue QueueProcessor, newLock LockFactory, cfg Config) *Scheduler {
	if cfg.PendingInterval <= 0 {
		cfg.PendingInterval = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 60 * time.Second
	}
	if cfg.BounceRetryHour <= 0 {
		cfg.BounceRetryHour = 8
	}
	if cfg.CleanupHour <= 0 {
		cfg.CleanupHour = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BounceMaxAgeDays <= 0 {
		cfg.BounceMaxAgeDays = 7
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}

	return &Scheduler{
		queue:   queue,
		newLock: newLock,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start launches the sweep loops and returns. The pending and retry sweeps
// also run once immediately to drain any backlog from before the restart.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting (pending=%s retry=%s bounce_retry=%02d:00Z cleanup=%02d:00Z)",
		s.cfg.PendingInterval, s.cfg.RetryInterval, s.cfg.BounceRetryHour, s.cfg.CleanupHour)

	s.wg.Add(4)
	go s.intervalLoop("queue:pending", s.cfg.PendingInterval, s.runPending)
	go s.intervalLoop("queue:retry", s.cfg.RetryInterval, s.runRetries)
	go s.dailyLoop("queue:bounce-retry", s.cfg.BounceRetryHour, s.runBounceRetry)
	go s.dailyLoop("queue:cleanup", s.cfg.CleanupHour, s.runCleanup)

	return nil
}

// Stop cancels the loops and blocks until they exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (s *Scheduler) intervalLoop(name string, interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()

	// Run once immediately on start.
	s.withLock(s.ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.withLock(s.ctx, name, fn)
		}
	}
}

func (s *Scheduler) dailyLoop(name string, hourUTC int, fn func(ctx context.Context)) {
	defer s.wg.Done()

	for {
		timer := time.NewTimer(time.Until(nextUTCHour(s.now(), hourUTC)))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.withLock(s.ctx, name, fn)
		}
	}
}

// nextUTCHour returns the next occurrence of hour:00 UTC strictly after now.
func nextUTCHour(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// withLock runs fn while holding the named lock, skipping the cycle when
// another instance holds it. A heartbeat goroutine extends the lock at a
// third of its TTL so long sweeps never outlive their claim.
func (s *Scheduler) withLock(ctx context.Context, name string, fn func(ctx context.Context)) {
	lock := s.newLock(name)

	ok, err := lock.TryLock(ctx)
	if err != nil {
		log.Printf("[Scheduler] Acquire %s lock: %v", name, err)
		return
	}
	if !ok {
		return
	}

	hbStop := make(chan struct{})
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		ticker := time.NewTicker(s.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hbStop:
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, s.cfg.LockTTL); err != nil {
					log.Printf("[Scheduler] Extend %s lock: %v", name, err)
					return
				}
			}
		}
	}()

	fn(ctx)

	close(hbStop)
	<-hbDone

	// Release with a detached context so shutdown cancellation does not
	// leave the lock held until TTL expiry.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Unlock(ctx); err != nil {
		log.Printf("[Scheduler] Release %s lock: %v", name, err)
	}
}

func (s *Scheduler) runPending(ctx context.Context) {
	res, err := s.queue.ProcessPendingQueue(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Printf("[Scheduler] Pending sweep: %v", err)
		return
	}
	logSweep("pending", res)
}

func (s *Scheduler) runRetries(ctx context.Context) {
	res, err := s.queue.ProcessRetryQueue(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Printf("[Scheduler] Retry sweep: %v", err)
		return
	}
	logSweep("retry", res)
}

func (s *Scheduler) runBounceRetry(ctx context.Context) {
	res, err := s.queue.ProcessDailyBounceRetry(ctx, s.cfg.BounceMaxAgeDays, s.cfg.BatchSize)
	if err != nil {
		log.Printf("[Scheduler] Bounce retry sweep: %v", err)
		return
	}
	logSweep("bounce-retry", res)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	n, err := s.queue.PurgeOld(ctx, s.cfg.RetentionDays)
	if err != nil {
		log.Printf("[Scheduler] Cleanup: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Scheduler] Cleanup removed %d entries older than %d days", n, s.cfg.RetentionDays)
	}
}

func logSweep(name string, res *domain.BatchResult) {
	if res.Processed == 0 && !res.BreakerAborted {
		return
	}
	log.Printf("[Scheduler] %s sweep: processed=%d sent=%d retry_queued=%d permanent=%d breaker_aborted=%v",
		name, res.Processed, res.Sent, res.RetryQueued, res.PermanentFailures, res.BreakerAborted)
}
