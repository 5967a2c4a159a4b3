package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/queue"
)

// defaultBatchLimit bounds how many entries a manual trigger drains when
// neither the request nor the config says otherwise.
const defaultBatchLimit = 50

// batchLimit resolves the batch size for a processing trigger from the
// ?limit query param, falling back to the configured batch size.
func (h *Handlers) batchLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	if h.queueCfg.BatchSize > 0 {
		return h.queueCfg.BatchSize
	}
	return defaultBatchLimit
}

// EnqueueEmail accepts an outbound email and stores it as a pending queue
// entry. Delivery happens in the batch sweeps, not in this request.
//
//	POST /api/queue/emails
func (h *Handlers) EnqueueEmail(w http.ResponseWriter, r *http.Request) {
	var req queue.EmailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	id, err := h.queue.QueueEmail(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.Created(w, map[string]string{"id": id, "status": "pending"})
}

// GetQueueEntry returns a single queue entry by id.
//
//	GET /api/queue/emails/{id}
func (h *Handlers) GetQueueEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, entry)
}

// QueueStats returns queue depth by status, mean retries, and breaker state.
//
//	GET /api/queue/stats
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// ProcessPending drains a batch of pending entries synchronously and
// returns the batch outcome. The scheduler runs this on an interval; the
// endpoint exists for manual and test-driven runs.
//
//	POST /api/queue/process?limit=N
func (h *Handlers) ProcessPending(w http.ResponseWriter, r *http.Request) {
	res, err := h.queue.ProcessPendingQueue(r.Context(), h.batchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ProcessRetries drains entries whose retry timer has elapsed.
//
//	POST /api/queue/process-retries?limit=N
func (h *Handlers) ProcessRetries(w http.ResponseWriter, r *http.Request) {
	res, err := h.queue.ProcessRetryQueue(r.Context(), h.batchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// BounceRetry re-attempts recently bounced entries, the daily second-chance
// pass for transient bounces.
//
//	POST /api/queue/bounce-retry?max_age_days=N&limit=N
func (h *Handlers) BounceRetry(w http.ResponseWriter, r *http.Request) {
	maxAge := h.queueCfg.BounceRetryMaxAgeDays
	if s := r.URL.Query().Get("max_age_days"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			maxAge = n
		}
	}

	res, err := h.queue.ProcessDailyBounceRetry(r.Context(), maxAge, h.batchLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// BreakerStatus reports the provider circuit state.
//
//	GET /api/breaker
func (h *Handlers) BreakerStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"state": h.queue.BreakerState().String()})
}

// ResetBreaker force-closes the provider circuit. Operator escape hatch for
// when the provider has recovered but the reset timeout has not elapsed.
//
//	POST /api/breaker/reset
func (h *Handlers) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	h.queue.ResetBreaker()
	httputil.OK(w, map[string]string{"state": h.queue.BreakerState().String()})
}
