package queue

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/breaker"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/provider"
)

// Config holds the retry policy for the send queue.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// ResetBounceRetryCount controls whether the daily bounce retry gives
	// entries a fresh retry budget when re-pending them.
	ResetBounceRetryCount bool
}

// Service implements send queue business logic. It coordinates the repository,
// the email provider, and the circuit breaker. Renderer and events may be nil;
// rendering and sent-event rows are skipped when they are.
type Service struct {
	repo     Repository
	client   provider.EmailClient
	breaker  *breaker.Breaker
	renderer Renderer
	events   EventRecorder
	cfg      Config
}

// NewService creates a queue service. Zero Config fields fall back to
// 3 retries, 60s base delay, 1h max delay, 2x multiplier.
func NewService(repo Repository, client provider.EmailClient, brk *breaker.Breaker, renderer Renderer, events EventRecorder, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 60 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Hour
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Service{
		repo:     repo,
		client:   client,
		breaker:  brk,
		renderer: renderer,
		events:   events,
		cfg:      cfg,
	}
}

// EmailRequest holds the fields for enqueueing an outbound email.
type EmailRequest struct {
	To         string                 `json:"to"`
	From       string                 `json:"from"`
	Subject    string                 `json:"subject"`
	HTMLBody   string                 `json:"html_body"`
	TextBody   string                 `json:"text_body,omitempty"`
	LeadID     string                 `json:"lead_id,omitempty"`
	CampaignID string                 `json:"campaign_id,omitempty"`
	MergeVars  map[string]interface{} `json:"merge_vars,omitempty"`
	MaxRetries int                    `json:"max_retries,omitempty"`
}

// QueueEmail validates and persists a pending queue entry, returning its id.
// The entry is durable before this returns; actual delivery happens in the
// batch sweeps. Merge vars are rendered into subject and bodies when a
// renderer is configured.
func (s *Service) QueueEmail(ctx context.Context, req EmailRequest) (string, error) {
	if req.To == "" {
		return "", fmt.Errorf("%w: to is required", ErrInvalidRequest)
	}
	if req.From == "" {
		return "", fmt.Errorf("%w: from is required", ErrInvalidRequest)
	}
	if req.Subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	}
	if req.HTMLBody == "" {
		return "", fmt.Errorf("%w: html_body is required", ErrInvalidRequest)
	}

	subject, htmlBody, textBody := req.Subject, req.HTMLBody, req.TextBody
	if s.renderer != nil && len(req.MergeVars) > 0 {
		var err error
		if subject, err = s.render(req.CampaignID, "subject", req.Subject, req.MergeVars); err != nil {
			return "", fmt.Errorf("render subject: %w", err)
		}
		if htmlBody, err = s.render(req.CampaignID, "html", req.HTMLBody, req.MergeVars); err != nil {
			return "", fmt.Errorf("render html body: %w", err)
		}
		if textBody != "" {
			if textBody, err = s.render(req.CampaignID, "text", req.TextBody, req.MergeVars); err != nil {
				return "", fmt.Errorf("render text body: %w", err)
			}
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	entry := &domain.QueueEntry{
		ID:         uuid.New().String(),
		To:         req.To,
		From:       req.From,
		Subject:    subject,
		HTMLBody:   htmlBody,
		TextBody:   textBody,
		Status:     domain.QueuePending,
		MaxRetries: maxRetries,
	}
	if req.LeadID != "" {
		entry.LeadID = &req.LeadID
	}
	if req.CampaignID != "" {
		entry.CampaignID = &req.CampaignID
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("enqueue email: %w", err)
	}
	log.Printf("[Queue] Queued %s to %s", entry.ID, logger.RedactEmail(entry.To))
	return entry.ID, nil
}

func (s *Service) render(campaignID, field, source string, vars map[string]interface{}) (string, error) {
	cacheKey := ""
	if campaignID != "" {
		cacheKey = campaignID + ":" + field
	}
	return s.renderer.Render(cacheKey, source, vars)
}

// ProcessPendingQueue attempts delivery for up to limit pending entries.
// The breaker is consulted before every entry; an open breaker aborts the
// remainder and the partial counts are returned without error.
func (s *Service) ProcessPendingQueue(ctx context.Context, limit int) (*domain.BatchResult, error) {
	entries, err := s.repo.GetByStatus(ctx, domain.QueuePending, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending entries: %w", err)
	}
	return s.processBatch(ctx, entries)
}

// ProcessRetryQueue attempts delivery for failed entries whose retry
// watermark has passed.
func (s *Service) ProcessRetryQueue(ctx context.Context, limit int) (*domain.BatchResult, error) {
	entries, err := s.repo.GetReadyForRetry(ctx, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("load retry entries: %w", err)
	}
	return s.processBatch(ctx, entries)
}

// ProcessDailyBounceRetry re-pends bounced entries younger than maxAgeDays
// and attempts delivery for them in the same pass. Retry counts are zeroed
// first when the reset policy is on.
func (s *Service) ProcessDailyBounceRetry(ctx context.Context, maxAgeDays, limit int) (*domain.BatchResult, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	entries, err := s.repo.GetBouncedSince(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("load bounced entries: %w", err)
	}

	pending := domain.QueuePending
	repended := make([]domain.QueueEntry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		u := UpdateFields{Status: &pending, ClearNextRetryAt: true, ClearLastError: true}
		if s.cfg.ResetBounceRetryCount {
			zero := 0
			u.RetryCount = &zero
			e.RetryCount = 0
		}
		if err := s.repo.Update(ctx, e.ID, u); err != nil {
			return nil, fmt.Errorf("re-pend bounced entry %s: %w", e.ID, err)
		}
		e.Status = domain.QueuePending
		e.NextRetryAt = nil
		e.LastError = nil
		repended = append(repended, e)
	}

	if len(repended) > 0 {
		log.Printf("[Queue] Daily bounce retry: re-pended %d entries", len(repended))
	}
	return s.processBatch(ctx, repended)
}

func (s *Service) processBatch(ctx context.Context, entries []domain.QueueEntry) (*domain.BatchResult, error) {
	res := &domain.BatchResult{}
	for i := range entries {
		if s.breaker.State() == breaker.StateOpen {
			res.BreakerAborted = true
			log.Printf("[Queue] Breaker %s open, aborting batch (%d of %d processed)",
				s.breaker.Name(), res.Processed, len(entries))
			break
		}

		out, err := s.processEntry(ctx, &entries[i])
		if err != nil {
			return res, err
		}
		switch out {
		case outcomeSkipped:
			// claimed elsewhere, not counted
		case outcomeSent:
			res.Processed++
			res.Sent++
		case outcomeRetryQueued:
			res.Processed++
			res.Failed++
			res.RetryQueued++
		case outcomePermanentFailure:
			res.Processed++
			res.Failed++
			res.PermanentFailures++
		case outcomeBreakerOpen:
			res.BreakerAborted = true
		}
		if out == outcomeBreakerOpen {
			break
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetryQueued
	outcomePermanentFailure
	outcomeBreakerOpen
)

// processEntry claims and attempts one entry. Storage failures propagate;
// provider failures are folded into the entry's status.
func (s *Service) processEntry(ctx context.Context, e *domain.QueueEntry) (outcome, error) {
	claimed, err := s.repo.Claim(ctx, e.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("claim entry %s: %w", e.ID, err)
	}
	if !claimed {
		return outcomeSkipped, nil
	}

	msg := &provider.Message{
		To:        e.To,
		FromEmail: e.From,
		Subject:   e.Subject,
		HTMLBody:  e.HTMLBody,
		TextBody:  e.TextBody,
	}
	if e.LeadID != nil {
		msg.LeadID = *e.LeadID
	}
	if e.CampaignID != nil {
		msg.CampaignID = *e.CampaignID
	}

	var receipt *provider.SendReceipt
	sendErr := s.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := s.client.SendEmail(ctx, msg)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})

	now := time.Now()
	if sendErr == nil {
		return outcomeSent, s.markSent(ctx, e, receipt, now)
	}

	if breaker.IsOpen(sendErr) {
		// Raced with the breaker tripping: release the claim untouched.
		prev := e.Status
		if err := s.repo.Update(ctx, e.ID, UpdateFields{Status: &prev}); err != nil {
			return outcomeBreakerOpen, fmt.Errorf("release entry %s: %w", e.ID, err)
		}
		return outcomeBreakerOpen, nil
	}

	return s.markFailed(ctx, e, sendErr, now)
}

func (s *Service) markSent(ctx context.Context, e *domain.QueueEntry, receipt *provider.SendReceipt, now time.Time) error {
	sent := domain.QueueSent
	u := UpdateFields{
		Status:           &sent,
		LastAttemptAt:    &now,
		ClearNextRetryAt: true,
		ClearLastError:   true,
	}
	if receipt != nil && receipt.MessageID != "" {
		u.ProviderMessageID = &receipt.MessageID
	}
	if err := s.repo.Update(ctx, e.ID, u); err != nil {
		return fmt.Errorf("mark entry %s sent: %w", e.ID, err)
	}

	if s.events != nil && receipt != nil {
		ev := &domain.StoredEvent{
			ID:                uuid.New().String(),
			Type:              domain.EventSent,
			ProviderMessageID: receipt.MessageID,
			Recipient:         e.To,
			OccurredAt:        now,
		}
		if e.LeadID != nil {
			ev.LeadID = *e.LeadID
		}
		if e.CampaignID != nil {
			ev.CampaignID = *e.CampaignID
		}
		if err := s.events.Insert(ctx, ev); err != nil {
			log.Printf("[Queue] Failed to record sent event for %s: %v", e.ID, err)
		}
	}
	return nil
}

func (s *Service) markFailed(ctx context.Context, e *domain.QueueEntry, sendErr error, now time.Time) (outcome, error) {
	errMsg := sendErr.Error()
	newCount := e.RetryCount + 1

	if !provider.IsRetryableError(sendErr) || newCount >= e.MaxRetries {
		permanent := domain.QueuePermanentFailure
		u := UpdateFields{
			Status:           &permanent,
			RetryCount:       &newCount,
			LastAttemptAt:    &now,
			LastError:        &errMsg,
			ClearNextRetryAt: true,
		}
		if err := s.repo.Update(ctx, e.ID, u); err != nil {
			return outcomePermanentFailure, fmt.Errorf("finalize entry %s: %w", e.ID, err)
		}
		log.Printf("[Queue] Entry %s permanently failed after %d attempts: %v", e.ID, newCount, sendErr)
		return outcomePermanentFailure, nil
	}

	failed := domain.QueueFailed
	nextRetry := now.Add(s.backoffDelay(e.RetryCount))
	u := UpdateFields{
		Status:        &failed,
		RetryCount:    &newCount,
		LastAttemptAt: &now,
		NextRetryAt:   &nextRetry,
		LastError:     &errMsg,
	}
	if err := s.repo.Update(ctx, e.ID, u); err != nil {
		return outcomeRetryQueued, fmt.Errorf("schedule retry for entry %s: %w", e.ID, err)
	}
	return outcomeRetryQueued, nil
}

// backoffDelay computes the delay before the next attempt for an entry that
// has already failed retryCount times: base * multiplier^retryCount capped at
// MaxDelay, with +/-10% jitter to spread retry bursts.
func (s *Service) backoffDelay(retryCount int) time.Duration {
	delay := float64(s.cfg.BaseDelay) * math.Pow(s.cfg.BackoffMultiplier, float64(retryCount))
	if delay > float64(s.cfg.MaxDelay) {
		delay = float64(s.cfg.MaxDelay)
	}
	jitter := (rand.Float64()*0.2 - 0.1) * delay
	return time.Duration(delay + jitter)
}

// HandleWebhookEvent folds a provider engagement event back into the queue
// entry carrying that provider message id. Delivered (and any unrecognized
// type) is a no-op; the entry already reached its terminal sent state.
func (s *Service) HandleWebhookEvent(ctx context.Context, providerMessageID string, eventType domain.EventType) error {
	entry, err := s.repo.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return err
	}

	switch eventType {
	case domain.EventBounced:
		bounced := domain.QueueBounced
		reason := "bounced"
		return s.repo.Update(ctx, entry.ID, UpdateFields{Status: &bounced, LastError: &reason})
	case domain.EventFailed:
		permanent := domain.QueuePermanentFailure
		reason := "provider reported failure"
		return s.repo.Update(ctx, entry.ID, UpdateFields{Status: &permanent, LastError: &reason, ClearNextRetryAt: true})
	default:
		return nil
	}
}

// Stats returns a snapshot of queue depth, retry pressure, and breaker state.
func (s *Service) Stats(ctx context.Context) (*domain.QueueStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}
	mean, err := s.repo.MeanRetryCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("mean retry count: %w", err)
	}

	stats := &domain.QueueStats{
		ByStatus:     counts,
		MeanRetries:  mean,
		BreakerState: s.breaker.State().String(),
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// PurgeOld deletes entries older than the retention window and returns how
// many were removed.
func (s *Service) PurgeOld(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge queue entries: %w", err)
	}
	if n > 0 {
		log.Printf("[Queue] Purged %d entries older than %d days", n, days)
	}
	return n, nil
}

// Get returns a single queue entry by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.QueueEntry, error) {
	return s.repo.Get(ctx, id)
}

// BreakerState exposes the breaker for inspection endpoints.
func (s *Service) BreakerState() breaker.State { return s.breaker.State() }

// ResetBreaker forces the breaker closed. Operator escape hatch.
func (s *Service) ResetBreaker() { s.breaker.Reset() }
