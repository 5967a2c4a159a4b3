package pipeline

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/tracker"
)

// EventRepository is the pipeline's view of the event store.
// Rows are insert-only; Select serves the metrics aggregation.
type EventRepository interface {
	Insert(ctx context.Context, ev *domain.StoredEvent) error
	Select(ctx context.Context, f domain.EventFilter) ([]domain.StoredEvent, error)
}

// StatusUpdater moves leads through their lifecycle. tracker.Service
// satisfies this; the pipeline never mutates lead status any other way.
type StatusUpdater interface {
	UpdateLeadStatus(ctx context.Context, leadID string, status domain.LeadStatus, opts tracker.UpdateOptions) (*domain.Lead, error)
}

// QueueUpdater folds engagement outcomes back into queue entries.
// queue.Service satisfies this.
type QueueUpdater interface {
	HandleWebhookEvent(ctx context.Context, providerMessageID string, eventType domain.EventType) error
}

// Archiver stores raw webhook payloads for replay and audit. Archival is
// best-effort; failures are logged and never block processing.
type Archiver interface {
	Archive(ctx context.Context, payload []byte, receivedAt time.Time) error
}
