package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/queue"
)

// QueueRepo implements queue.Repository against PostgreSQL.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `id, lead_id, campaign_id, to_email, from_email, subject,
	       html_body, COALESCE(text_body,''), status, retry_count, max_retries,
	       last_attempt_at, next_retry_at, last_error, provider_message_id,
	       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueEntry(row rowScanner) (*domain.QueueEntry, error) {
	e := &domain.QueueEntry{}
	var leadID, campaignID, lastError, providerMessageID sql.NullString
	var lastAttemptAt, nextRetryAt sql.NullTime

	err := row.Scan(
		&e.ID, &leadID, &campaignID, &e.To, &e.From, &e.Subject,
		&e.HTMLBody, &e.TextBody, &e.Status, &e.RetryCount, &e.MaxRetries,
		&lastAttemptAt, &nextRetryAt, &lastError, &providerMessageID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leadID.Valid {
		e.LeadID = &leadID.String
	}
	if campaignID.Valid {
		e.CampaignID = &campaignID.String
	}
	if lastAttemptAt.Valid {
		e.LastAttemptAt = &lastAttemptAt.Time
	}
	if nextRetryAt.Valid {
		e.NextRetryAt = &nextRetryAt.Time
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if providerMessageID.Valid {
		e.ProviderMessageID = &providerMessageID.String
	}
	return e, nil
}

func (r *QueueRepo) Create(ctx context.Context, e *domain.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_queue
			(id, lead_id, campaign_id, to_email, from_email, subject,
			 html_body, text_body, status, retry_count, max_retries,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, e.ID, e.LeadID, e.CampaignID, e.To, e.From, e.Subject,
		e.HTMLBody, e.TextBody, e.Status, e.RetryCount, e.MaxRetries)
	if err != nil {
		return fmt.Errorf("create queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM outreach_queue WHERE id = $1`, id)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, queue.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

func (r *QueueRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM outreach_queue WHERE provider_message_id = $1`,
		providerMessageID)
	e, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, queue.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry by message id: %w", err)
	}
	return e, nil
}

func (r *QueueRepo) Update(ctx context.Context, id string, u queue.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.RetryCount != nil {
		add("retry_count", *u.RetryCount)
	}
	if u.LastAttemptAt != nil {
		add("last_attempt_at", *u.LastAttemptAt)
	}
	if u.NextRetryAt != nil {
		add("next_retry_at", *u.NextRetryAt)
	} else if u.ClearNextRetryAt {
		sets = append(sets, "next_retry_at = NULL")
	}
	if u.LastError != nil {
		add("last_error", *u.LastError)
	} else if u.ClearLastError {
		sets = append(sets, "last_error = NULL")
	}
	if u.ProviderMessageID != nil {
		add("provider_message_id", *u.ProviderMessageID)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE outreach_queue SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return queue.ErrEntryNotFound
	}
	return nil
}

func (r *QueueRepo) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_queue SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending','failed')
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim queue entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *QueueRepo) GetByStatus(ctx context.Context, status domain.QueueEntryStatus, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM outreach_queue
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (r *QueueRepo) GetReadyForRetry(ctx context.Context, now time.Time, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM outreach_queue
		WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at ASC LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list retry-ready entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (r *QueueRepo) GetBouncedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM outreach_queue
		WHERE status = 'bounced' AND created_at > $1
		ORDER BY created_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list bounced entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func collectQueueEntries(rows *sql.Rows) ([]domain.QueueEntry, error) {
	var out []domain.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueEntryStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outreach_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueEntryStatus]int)
	for rows.Next() {
		var status domain.QueueEntryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *QueueRepo) MeanRetryCount(ctx context.Context) (float64, error) {
	var mean float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(retry_count), 0) FROM outreach_queue`,
	).Scan(&mean)
	if err != nil {
		return 0, fmt.Errorf("mean retry count: %w", err)
	}
	return mean, nil
}

func (r *QueueRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outreach_queue WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old queue entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
