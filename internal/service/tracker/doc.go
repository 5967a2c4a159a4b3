// Package tracker implements the lead lifecycle state machine.
//
// Every lead status mutation in the system flows through this service: the
// transition is validated against the lifecycle graph, the lead row is
// updated, exactly one history entry is appended, and registered subscribers
// are notified. The webhook pipeline and the HTTP API are both callers;
// neither touches lead status directly.
//
// Repository interfaces are defined in this package; the Postgres
// implementations live in repository/postgres/.
package tracker
