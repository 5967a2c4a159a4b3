package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
)

// EventRepo implements the stored-event repositories used by the webhook
// pipeline (pipeline.EventRepository) and the send queue (queue.EventRecorder).
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Insert(ctx context.Context, ev *domain.StoredEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_events
			(id, event_type, provider_message_id, lead_id, campaign_id,
			 recipient, detail, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, ev.ID, ev.Type, ev.ProviderMessageID, ev.LeadID, ev.CampaignID,
		ev.Recipient, ev.Detail, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepo) Select(ctx context.Context, f domain.EventFilter) ([]domain.StoredEvent, error) {
	q := `
		SELECT id, event_type, provider_message_id, COALESCE(lead_id,''),
		       COALESCE(campaign_id,''), recipient, COALESCE(detail,''),
		       occurred_at, created_at
		FROM outreach_events`

	conds := []string{}
	args := []interface{}{}
	idx := 1

	if f.CampaignID != "" {
		conds = append(conds, fmt.Sprintf("campaign_id = $%d", idx))
		args = append(args, f.CampaignID)
		idx++
	}
	if f.LeadID != "" {
		conds = append(conds, fmt.Sprintf("lead_id = $%d", idx))
		args = append(args, f.LeadID)
		idx++
	}
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = fmt.Sprintf("$%d", idx)
			args = append(args, t)
			idx++
		}
		conds = append(conds, fmt.Sprintf("event_type IN (%s)", strings.Join(ph, ", ")))
	}
	if f.Since != nil {
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", idx))
		args = append(args, *f.Since)
		idx++
	}
	if f.Until != nil {
		conds = append(conds, fmt.Sprintf("occurred_at <= $%d", idx))
		args = append(args, *f.Until)
		idx++
	}

	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredEvent
	for rows.Next() {
		var ev domain.StoredEvent
		if err := rows.Scan(
			&ev.ID, &ev.Type, &ev.ProviderMessageID, &ev.LeadID,
			&ev.CampaignID, &ev.Recipient, &ev.Detail,
			&ev.OccurredAt, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
