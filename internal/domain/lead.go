package domain

import "time"

// LeadStatus enumerates the lifecycle states of a sales lead.
type LeadStatus string

const (
	LeadPending   LeadStatus = "pending"
	LeadEmailed   LeadStatus = "emailed"
	LeadCalled    LeadStatus = "called"
	LeadBooked    LeadStatus = "booked"
	LeadConverted LeadStatus = "converted"
	LeadDeclined  LeadStatus = "declined"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadPending, LeadEmailed, LeadCalled, LeadBooked, LeadConverted, LeadDeclined:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadConverted || s == LeadDeclined
}

// Lead represents a sales prospect being worked through the outreach funnel.
type Lead struct {
	ID              string     `json:"id" db:"id"`
	Email           string     `json:"email" db:"email"`
	Name            string     `json:"name,omitempty" db:"name"`
	Company         string     `json:"company,omitempty" db:"company"`
	Status          LeadStatus `json:"status" db:"status"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// StatusChange describes one accepted lead transition, as delivered to
// tracker subscribers.
type StatusChange struct {
	LeadID string     `json:"lead_id"`
	From   LeadStatus `json:"from"`
	To     LeadStatus `json:"to"`
	Reason string     `json:"reason,omitempty"`
	Notes  string     `json:"notes,omitempty"`
	At     time.Time  `json:"at"`
}

// StatusHistoryEntry is the append-only audit record of a lead transition.
// Exactly one entry exists per accepted status change.
type StatusHistoryEntry struct {
	ID         string     `json:"id" db:"id"`
	LeadID     string     `json:"lead_id" db:"lead_id"`
	FromStatus LeadStatus `json:"from_status" db:"from_status"`
	ToStatus   LeadStatus `json:"to_status" db:"to_status"`
	Reason     string     `json:"reason,omitempty" db:"reason"`
	Notes      string     `json:"notes,omitempty" db:"notes"`
	Actor      string     `json:"actor,omitempty" db:"actor"`
	ChangedAt  time.Time  `json:"changed_at" db:"changed_at"`
}
