package tracker

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// LeadRepository defines the data access contract for leads.
// Implementations must be safe for concurrent use.
type LeadRepository interface {
	// GetLead returns a single lead. Returns ErrLeadNotFound if it doesn't exist.
	GetLead(ctx context.Context, id string) (*domain.Lead, error)

	// CreateLead inserts a new lead and returns its id.
	CreateLead(ctx context.Context, l *domain.Lead) (string, error)

	// UpdateLead applies the non-nil fields. Returns ErrLeadNotFound when the
	// lead doesn't exist.
	UpdateLead(ctx context.Context, id string, u LeadUpdate) error
}

// HistoryRepository defines the append-only status history contract.
type HistoryRepository interface {
	// Append inserts one history entry.
	Append(ctx context.Context, e *domain.StatusHistoryEntry) error

	// ListByLead returns a lead's history, newest first.
	ListByLead(ctx context.Context, leadID string) ([]domain.StatusHistoryEntry, error)
}

// LeadUpdate holds the mutable fields for a lead update.
// Nil fields are not applied.
type LeadUpdate struct {
	Status          *domain.LeadStatus
	LastContactedAt *time.Time
}
