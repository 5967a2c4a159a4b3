// Package pipeline implements webhook ingestion for email engagement events.
//
// A raw provider payload enters through ProcessWebhook and flows through a
// fixed sequence: signature-verified parse, lead attribution, conversion to
// a typed domain event, best-effort persistence and archival, and routing.
// Routing folds the event into the rest of the system: lead status moves
// through the tracker, queue entries are finalized on bounces and failures,
// and everything else feeds the campaign metrics read from the event store.
//
// ProcessWebhook never returns an error. Providers retry on non-200s and
// redeliver regardless, so the handler reports a structured Result and the
// HTTP layer always acknowledges.
package pipeline
