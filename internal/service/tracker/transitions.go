package tracker

import (
	"fmt"

	"github.com/ignite/outreach/internal/domain"
)

// validTransitions is the lead lifecycle graph. A status absent from a
// from-set cannot be reached from it; terminal states have empty sets.
var validTransitions = map[domain.LeadStatus][]domain.LeadStatus{
	domain.LeadPending:   {domain.LeadEmailed, domain.LeadCalled, domain.LeadDeclined},
	domain.LeadEmailed:   {domain.LeadCalled, domain.LeadBooked, domain.LeadConverted, domain.LeadDeclined},
	domain.LeadCalled:    {domain.LeadBooked, domain.LeadConverted, domain.LeadDeclined},
	domain.LeadBooked:    {domain.LeadConverted, domain.LeadDeclined},
	domain.LeadConverted: {},
	domain.LeadDeclined:  {},
}

// ValidateTransition checks whether from -> to is an allowed edge in the
// lifecycle graph. Pure pre-flight check; it touches no storage.
func ValidateTransition(from, to domain.LeadStatus) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to domain.LeadStatus) bool {
	return ValidateTransition(from, to) == nil
}

// AllowedTargets returns the statuses reachable from the given status.
func AllowedTargets(from domain.LeadStatus) []domain.LeadStatus {
	targets := validTransitions[from]
	out := make([]domain.LeadStatus, len(targets))
	copy(out, targets)
	return out
}

// TerminalStatuses returns the statuses that reject all further transitions.
func TerminalStatuses() []domain.LeadStatus {
	return []domain.LeadStatus{domain.LeadConverted, domain.LeadDeclined}
}
