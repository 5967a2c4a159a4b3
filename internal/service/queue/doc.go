// Package queue implements the outbound send queue.
//
// The service layer owns the delivery lifecycle of a queued email: pending
// entries are claimed, sent through the provider behind a circuit breaker,
// and on failure either rescheduled with exponential backoff or finalized as
// permanent failures. Bounced entries can be returned to the queue by the
// daily bounce retry sweep.
//
// The service depends on the Repository interface defined in this package
// and should never import from api/. The Postgres implementation lives in
// repository/postgres/.
package queue
