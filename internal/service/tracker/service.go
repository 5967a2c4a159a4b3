package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
)

// SubscriberFunc receives accepted status changes. Subscribers run after the
// change is committed; a panicking subscriber is recovered and logged and
// never fails the update.
type SubscriberFunc func(ctx context.Context, change domain.StatusChange)

// UpdateOptions carries the audit fields for a status update.
type UpdateOptions struct {
	Reason                string `json:"reason,omitempty"`
	Notes                 string `json:"notes,omitempty"`
	Actor                 string `json:"actor,omitempty"`
	SuppressNotifications bool   `json:"-"`
}

// Service implements the lead status state machine. It is safe for
// concurrent use if the underlying repositories are.
type Service struct {
	leads   LeadRepository
	history HistoryRepository

	mu          sync.RWMutex
	subscribers map[domain.LeadStatus][]SubscriberFunc
	wildcards   []SubscriberFunc
}

// NewService creates a tracker backed by the given repositories.
func NewService(leads LeadRepository, history HistoryRepository) *Service {
	return &Service{
		leads:       leads,
		history:     history,
		subscribers: make(map[domain.LeadStatus][]SubscriberFunc),
	}
}

// Subscribe registers fn for changes entering the given status.
func (s *Service) Subscribe(status domain.LeadStatus, fn SubscriberFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[status] = append(s.subscribers[status], fn)
}

// SubscribeAll registers fn for every accepted change.
func (s *Service) SubscribeAll(fn SubscriberFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wildcards = append(s.wildcards, fn)
}

// GetLead returns a single lead.
func (s *Service) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	return s.leads.GetLead(ctx, id)
}

// RegisterLead validates and persists a new lead in pending status.
func (s *Service) RegisterLead(ctx context.Context, email, name, company string) (*domain.Lead, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	l := &domain.Lead{
		ID:      uuid.New().String(),
		Email:   email,
		Name:    name,
		Company: company,
		Status:  domain.LeadPending,
	}
	id, err := s.leads.CreateLead(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	l.ID = id
	return l, nil
}

// UpdateLeadStatus moves a lead to newStatus. The transition is validated
// against the lifecycle graph, the lead row is updated (stamping
// LastContactedAt when entering emailed or called), exactly one history
// entry is appended, and subscribers are notified.
func (s *Service) UpdateLeadStatus(ctx context.Context, leadID string, newStatus domain.LeadStatus, opts UpdateOptions) (*domain.Lead, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(lead.Status, newStatus); err != nil {
		return nil, err
	}

	now := time.Now()
	update := LeadUpdate{Status: &newStatus}
	if newStatus == domain.LeadEmailed || newStatus == domain.LeadCalled {
		update.LastContactedAt = &now
	}
	if err := s.leads.UpdateLead(ctx, leadID, update); err != nil {
		return nil, fmt.Errorf("update lead %s: %w", leadID, err)
	}

	entry := &domain.StatusHistoryEntry{
		ID:         uuid.New().String(),
		LeadID:     leadID,
		FromStatus: lead.Status,
		ToStatus:   newStatus,
		Reason:     opts.Reason,
		Notes:      opts.Notes,
		Actor:      opts.Actor,
		ChangedAt:  now,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history for lead %s: %w", leadID, err)
	}

	change := domain.StatusChange{
		LeadID: leadID,
		From:   lead.Status,
		To:     newStatus,
		Reason: opts.Reason,
		Notes:  opts.Notes,
		At:     now,
	}
	if !opts.SuppressNotifications {
		s.notify(ctx, change)
	}

	updated := *lead
	updated.Status = newStatus
	updated.UpdatedAt = now
	if update.LastContactedAt != nil {
		updated.LastContactedAt = update.LastContactedAt
	}
	return &updated, nil
}

// BatchItem is one status update in a batch request.
type BatchItem struct {
	LeadID string            `json:"lead_id"`
	Status domain.LeadStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Notes  string            `json:"notes,omitempty"`
	Actor  string            `json:"actor,omitempty"`
}

// BatchResult is the per-item outcome of a batch update.
type BatchResult struct {
	LeadID string       `json:"lead_id"`
	Lead   *domain.Lead `json:"lead,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// UpdateStatusBatch applies each item independently; one failing item does
// not stop the rest.
func (s *Service) UpdateStatusBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	for _, item := range items {
		res := BatchResult{LeadID: item.LeadID}
		lead, err := s.UpdateLeadStatus(ctx, item.LeadID, item.Status, UpdateOptions{
			Reason: item.Reason,
			Notes:  item.Notes,
			Actor:  item.Actor,
		})
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Lead = lead
		}
		results = append(results, res)
	}
	return results
}

// History returns a lead's transition history, newest first.
func (s *Service) History(ctx context.Context, leadID string) ([]domain.StatusHistoryEntry, error) {
	return s.history.ListByLead(ctx, leadID)
}

func (s *Service) notify(ctx context.Context, change domain.StatusChange) {
	s.mu.RLock()
	fns := make([]SubscriberFunc, 0, len(s.subscribers[change.To])+len(s.wildcards))
	fns = append(fns, s.subscribers[change.To]...)
	fns = append(fns, s.wildcards...)
	s.mu.RUnlock()

	for _, fn := range fns {
		s.safeNotify(ctx, fn, change)
	}
}

func (s *Service) safeNotify(ctx context.Context, fn SubscriberFunc, change domain.StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Tracker] Subscriber panic for lead %s (%s -> %s): %v",
				change.LeadID, change.From, change.To, r)
		}
	}()
	fn(ctx, change)
}
