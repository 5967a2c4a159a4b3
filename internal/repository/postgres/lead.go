package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/tracker"
)

// LeadRepo implements tracker.LeadRepository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

func (r *LeadRepo) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var lastContactedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(name,''), COALESCE(company,''), status,
		       last_contacted_at, created_at, updated_at
		FROM outreach_leads WHERE id = $1
	`, id).Scan(
		&l.ID, &l.Email, &l.Name, &l.Company, &l.Status,
		&lastContactedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, tracker.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if lastContactedAt.Valid {
		l.LastContactedAt = &lastContactedAt.Time
	}
	return l, nil
}

func (r *LeadRepo) CreateLead(ctx context.Context, l *domain.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_leads
			(id, email, name, company, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, l.ID, l.Email, l.Name, l.Company, l.Status)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepo) UpdateLead(ctx context.Context, id string, u tracker.LeadUpdate) error {
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
	if u.LastContactedAt != nil {
		add("last_contacted_at", *u.LastContactedAt)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE outreach_leads SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return tracker.ErrLeadNotFound
	}
	return nil
}
