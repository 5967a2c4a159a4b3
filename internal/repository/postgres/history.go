package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
)

// HistoryRepo implements tracker.HistoryRepository against PostgreSQL.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed status history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Append(ctx context.Context, h *domain.StatusHistoryEntry) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_lead_history
			(id, lead_id, from_status, to_status, reason, notes, actor, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.ID, h.LeadID, h.FromStatus, h.ToStatus, h.Reason, h.Notes, h.Actor, h.ChangedAt)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) ListByLead(ctx context.Context, leadID string, limit int) ([]domain.StatusHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lead_id, from_status, to_status, COALESCE(reason,''),
		       COALESCE(notes,''), COALESCE(actor,''), changed_at
		FROM outreach_lead_history
		WHERE lead_id = $1 ORDER BY changed_at DESC LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusHistoryEntry
	for rows.Next() {
		var h domain.StatusHistoryEntry
		if err := rows.Scan(
			&h.ID, &h.LeadID, &h.FromStatus, &h.ToStatus, &h.Reason,
			&h.Notes, &h.Actor, &h.ChangedAt,
		); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
