package queue

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// Repository defines the data access contract for queue entries.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new queue entry.
	Create(ctx context.Context, e *domain.QueueEntry) error

	// Get returns a single entry. Returns ErrEntryNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.QueueEntry, error)

	// GetByProviderMessageID resolves an entry from the provider's message id.
	// Returns ErrEntryNotFound when no entry carries that id.
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.QueueEntry, error)

	// Update applies the non-nil fields. Returns ErrEntryNotFound when the
	// entry doesn't exist.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Claim atomically moves an entry from pending or failed to processing.
	// Returns false when the entry was already claimed or finalized by a
	// concurrent sweep. This is the serialization point for batch workers.
	Claim(ctx context.Context, id string) (bool, error)

	// GetByStatus returns up to limit entries with the given status, oldest
	// first.
	GetByStatus(ctx context.Context, status domain.QueueEntryStatus, limit int) ([]domain.QueueEntry, error)

	// GetReadyForRetry returns failed entries whose next_retry_at watermark
	// has passed, oldest watermark first.
	GetReadyForRetry(ctx context.Context, now time.Time, limit int) ([]domain.QueueEntry, error)

	// GetBouncedSince returns bounced entries created after the cutoff,
	// oldest first. Used by the daily bounce retry sweep.
	GetBouncedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.QueueEntry, error)

	// CountByStatus returns entry counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.QueueEntryStatus]int, error)

	// MeanRetryCount returns the average retry count across all entries.
	MeanRetryCount(ctx context.Context) (float64, error)

	// DeleteOlderThan removes entries created before the cutoff and returns
	// how many were deleted. The only deletion path for queue entries.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// UpdateFields holds the mutable fields for a queue entry update.
// Nil pointer fields are not applied; the Clear flags null out their column.
type UpdateFields struct {
	Status            *domain.QueueEntryStatus
	RetryCount        *int
	LastAttemptAt     *time.Time
	NextRetryAt       *time.Time
	ClearNextRetryAt  bool
	LastError         *string
	ClearLastError    bool
	ProviderMessageID *string
}

// EventRecorder receives best-effort sent rows for the metrics denominator.
// The pipeline's event store satisfies this.
type EventRecorder interface {
	Insert(ctx context.Context, ev *domain.StoredEvent) error
}

// Renderer expands merge fields in subjects and bodies at enqueue time.
// template.Engine satisfies this.
type Renderer interface {
	Render(cacheKey, templateStr string, vars map[string]interface{}) (string, error)
}
