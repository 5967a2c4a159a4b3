package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/service/queue"
	"github.com/ignite/outreach/internal/service/tracker"
)

// DefaultBookingKeywords flag replies that read like meeting requests.
var DefaultBookingKeywords = []string{
	"book", "booking", "schedule", "calendar", "appointment", "meeting",
	"call tomorrow", "call today", "demo", "interested in a call",
	"available", "let's talk",
}

// Config holds the routing policy for engagement events.
type Config struct {
	// BounceStatus and ComplaintStatus are where permanent bounces and spam
	// complaints move a lead. ReplyStatus is where replies move it.
	BounceStatus    domain.LeadStatus
	ComplaintStatus domain.LeadStatus
	ReplyStatus     domain.LeadStatus
	BookingKeywords []string
}

// Service runs the webhook ingestion pipeline. Archiver may be nil.
type Service struct {
	client   provider.EmailClient
	events   EventRepository
	tracker  StatusUpdater
	queue    QueueUpdater
	archiver Archiver
	cfg      Config
}

// NewService creates a pipeline. Zero Config fields fall back to
// declined/declined/called and the default booking keywords.
func NewService(client provider.EmailClient, events EventRepository, statusTracker StatusUpdater, queueSvc QueueUpdater, archiver Archiver, cfg Config) *Service {
	if cfg.BounceStatus == "" {
		cfg.BounceStatus = domain.LeadDeclined
	}
	if cfg.ComplaintStatus == "" {
		cfg.ComplaintStatus = domain.LeadDeclined
	}
	if cfg.ReplyStatus == "" {
		cfg.ReplyStatus = domain.LeadCalled
	}
	if len(cfg.BookingKeywords) == 0 {
		cfg.BookingKeywords = DefaultBookingKeywords
	}
	return &Service{
		client:   client,
		events:   events,
		tracker:  statusTracker,
		queue:    queueSvc,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Result is the structured outcome of one webhook delivery.
type Result struct {
	Success       bool   `json:"success"`
	EventID       string `json:"event_id,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	LeadID        string `json:"lead_id,omitempty"`
	StatusUpdated bool   `json:"status_updated"`
	Error         string `json:"error,omitempty"`
}

// ProcessWebhook ingests one provider webhook delivery. It never returns an
// error: parse and attribution failures are reported in the Result, and
// storage or routing hiccups are logged without rejecting the delivery.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signature, timestamp string) Result {
	ev, err := s.client.ParseWebhook(payload, signature, timestamp)
	if err != nil {
		if errors.Is(err, provider.ErrNonEvent) {
			// Subscription confirmations, send acks: acknowledge, nothing to do.
			return Result{Success: true}
		}
		log.Printf("[Pipeline] Webhook parse failed: %s", logger.RedactEmailsIn(err.Error()))
		return Result{Error: err.Error()}
	}

	leadID, err := extractLeadID(ev)
	if err != nil {
		log.Printf("[Pipeline] %v", err)
		return Result{EventType: ev.Type, Error: err.Error()}
	}

	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	env := domain.Envelope{
		EventID:           uuid.New().String(),
		ProviderMessageID: ev.MessageID,
		LeadID:            leadID,
		CampaignID:        extractCampaignID(ev),
		Recipient:         ev.Recipient,
		OccurredAt:        occurredAt,
	}

	event, err := s.toDomainEvent(ev, env)
	if err != nil {
		log.Printf("[Pipeline] %v", err)
		return Result{EventType: ev.Type, LeadID: leadID, Error: err.Error()}
	}

	s.persist(ctx, event)
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, payload, time.Now()); err != nil {
			log.Printf("[Pipeline] Archive failed for event %s: %v", env.EventID, err)
		}
	}

	statusUpdated := s.route(ctx, event)

	return Result{
		Success:       true,
		EventID:       env.EventID,
		EventType:     string(event.Kind()),
		LeadID:        leadID,
		StatusUpdated: statusUpdated,
	}
}

// persist writes the event row. Best-effort: failures are logged and the
// delivery is still acknowledged.
func (s *Service) persist(ctx context.Context, event domain.EmailEvent) {
	meta := event.Meta()
	detail, err := json.Marshal(event)
	if err != nil {
		detail = []byte("{}")
	}
	row := &domain.StoredEvent{
		ID:                meta.EventID,
		Type:              event.Kind(),
		ProviderMessageID: meta.ProviderMessageID,
		LeadID:            meta.LeadID,
		CampaignID:        meta.CampaignID,
		Recipient:         meta.Recipient,
		Detail:            string(detail),
		OccurredAt:        meta.OccurredAt,
	}
	if err := s.events.Insert(ctx, row); err != nil {
		log.Printf("[Pipeline] Failed to persist %s event %s: %v", event.Kind(), meta.EventID, err)
	}
}

// route applies the event's side effects. The switch is exhaustive over the
// closed union; an unrouted kind lands in the default and is logged.
func (s *Service) route(ctx context.Context, event domain.EmailEvent) bool {
	meta := event.Meta()

	switch e := event.(type) {
	case domain.DeliveredEvent, domain.OpenedEvent, domain.ClickedEvent, domain.UnsubscribedEvent:
		// Metrics-only: no lifecycle inference from engagement signals.
		return false

	case domain.BouncedEvent:
		statusUpdated := false
		if e.Permanent {
			notes := e.Code
			if e.Message != "" {
				notes = e.Code + ": " + e.Message
			}
			statusUpdated = s.updateStatus(ctx, meta.LeadID, s.cfg.BounceStatus, tracker.UpdateOptions{
				Reason: "email bounced",
				Notes:  notes,
				Actor:  "pipeline",
			})
		}
		s.signalQueue(ctx, meta.ProviderMessageID, domain.EventBounced)
		return statusUpdated

	case domain.ComplainedEvent:
		return s.updateStatus(ctx, meta.LeadID, s.cfg.ComplaintStatus, tracker.UpdateOptions{
			Reason: "spam complaint",
			Notes:  e.FeedbackType,
			Actor:  "pipeline",
		})

	case domain.FailedEvent:
		s.signalQueue(ctx, meta.ProviderMessageID, domain.EventFailed)
		return false

	case domain.RepliedEvent:
		notes := "replied: " + e.Subject
		if e.BookingIntent {
			notes += " (booking intent detected)"
		}
		return s.updateStatus(ctx, meta.LeadID, s.cfg.ReplyStatus, tracker.UpdateOptions{
			Reason: "lead replied",
			Notes:  notes,
			Actor:  "pipeline",
		})

	default:
		log.Printf("[Pipeline] No route for event kind %s", event.Kind())
		return false
	}
}

// updateStatus runs a tracker transition and downgrades expected rejections
// to no-ops: a lead already declined stays declined when a second bounce
// arrives, and that is a success for the webhook.
func (s *Service) updateStatus(ctx context.Context, leadID string, status domain.LeadStatus, opts tracker.UpdateOptions) bool {
	_, err := s.tracker.UpdateLeadStatus(ctx, leadID, status, opts)
	if err == nil {
		return true
	}
	if errors.Is(err, tracker.ErrInvalidTransition) {
		log.Printf("[Pipeline] Lead %s: transition to %s skipped: %v", leadID, status, err)
		return false
	}
	if errors.Is(err, tracker.ErrLeadNotFound) {
		log.Printf("[Pipeline] Lead %s not found for status update to %s", leadID, status)
		return false
	}
	log.Printf("[Pipeline] Lead %s: status update to %s failed: %v", leadID, status, err)
	return false
}

func (s *Service) signalQueue(ctx context.Context, providerMessageID string, eventType domain.EventType) {
	if providerMessageID == "" {
		return
	}
	if err := s.queue.HandleWebhookEvent(ctx, providerMessageID, eventType); err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			log.Printf("[Pipeline] No queue entry for provider message %s", providerMessageID)
			return
		}
		log.Printf("[Pipeline] Queue update for message %s failed: %v", providerMessageID, err)
	}
}

// Metrics aggregates engagement for one campaign from the event store.
// Delivered, opened, and clicked are deduplicated per recipient; rates
// divide safely and report 0 when the denominator is empty.
func (s *Service) Metrics(ctx context.Context, campaignID string) (*domain.EmailMetrics, error) {
	rows, err := s.events.Select(ctx, domain.EventFilter{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}

	m := &domain.EmailMetrics{CampaignID: campaignID}
	delivered := make(map[string]bool)
	opened := make(map[string]bool)
	clicked := make(map[string]bool)

	for _, row := range rows {
		switch row.Type {
		case domain.EventSent:
			m.Sent++
		case domain.EventDelivered:
			delivered[row.Recipient] = true
		case domain.EventOpened:
			opened[row.Recipient] = true
		case domain.EventClicked:
			clicked[row.Recipient] = true
		case domain.EventBounced:
			m.Bounced++
		case domain.EventComplained:
			m.Complained++
		case domain.EventUnsubscribed:
			m.Unsubscribed++
		case domain.EventReplied:
			m.Replied++
		case domain.EventFailed:
			m.Failed++
		}
	}

	m.UniqueDelivered = len(delivered)
	m.UniqueOpened = len(opened)
	m.UniqueClicked = len(clicked)
	m.DeliveryRate = ratio(m.UniqueDelivered, m.Sent)
	m.OpenRate = ratio(m.UniqueOpened, m.UniqueDelivered)
	m.ClickRate = ratio(m.UniqueClicked, m.UniqueDelivered)
	m.BounceRate = ratio(m.Bounced, m.Sent)
	m.ReplyRate = ratio(m.Replied, m.UniqueDelivered)
	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
