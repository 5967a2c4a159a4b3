package domain

import "time"

// QueueEntryStatus enumerates the lifecycle of a single email in the send queue.
type QueueEntryStatus string

const (
	QueuePending          QueueEntryStatus = "pending"
	QueueProcessing       QueueEntryStatus = "processing"
	QueueSent             QueueEntryStatus = "sent"
	QueueFailed           QueueEntryStatus = "failed"
	QueueBounced          QueueEntryStatus = "bounced"
	QueuePermanentFailure QueueEntryStatus = "permanent_failure"
)

// IsFinal returns true if the entry will never be attempted again by the
// normal pending/retry sweeps. Bounced entries are final here but may be
// re-pended by the daily bounce retry.
func (s QueueEntryStatus) IsFinal() bool {
	return s == QueueSent || s == QueueBounced || s == QueuePermanentFailure
}

// QueueEntry is one outbound email together with its delivery bookkeeping.
type QueueEntry struct {
	ID                string           `json:"id" db:"id"`
	LeadID            *string          `json:"lead_id,omitempty" db:"lead_id"`
	CampaignID        *string          `json:"campaign_id,omitempty" db:"campaign_id"`
	To                string           `json:"to" db:"to_email"`
	From              string           `json:"from" db:"from_email"`
	Subject           string           `json:"subject" db:"subject"`
	HTMLBody          string           `json:"html_body" db:"html_body"`
	TextBody          string           `json:"text_body,omitempty" db:"text_body"`
	Status            QueueEntryStatus `json:"status" db:"status"`
	RetryCount        int              `json:"retry_count" db:"retry_count"`
	MaxRetries        int              `json:"max_retries" db:"max_retries"`
	LastAttemptAt     *time.Time       `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextRetryAt       *time.Time       `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastError         *string          `json:"last_error,omitempty" db:"last_error"`
	ProviderMessageID *string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// BatchResult summarizes one batch-processing invocation of the send queue.
// Counts are partial when the circuit breaker aborts the batch mid-way.
type BatchResult struct {
	Processed         int  `json:"processed"`
	Sent              int  `json:"sent"`
	Failed            int  `json:"failed"`
	RetryQueued       int  `json:"retry_queued"`
	PermanentFailures int  `json:"permanent_failures"`
	BreakerAborted    bool `json:"breaker_aborted"`
}

// QueueStats is a point-in-time snapshot of the send queue.
type QueueStats struct {
	ByStatus     map[QueueEntryStatus]int `json:"by_status"`
	Total        int                      `json:"total"`
	MeanRetries  float64                  `json:"mean_retries"`
	BreakerState string                   `json:"breaker_state"`
}
