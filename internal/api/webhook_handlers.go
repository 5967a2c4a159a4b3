package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/pkg/httputil"
)

// Resend signs deliveries svix-style with these headers. SES events arrive
// wrapped in SNS envelopes that carry their own signature, so the headers
// are absent there and the pipeline ignores them.
const (
	headerSvixSignature = "Svix-Signature"
	headerSvixTimestamp = "Svix-Timestamp"
)

// HandleProviderWebhook ingests one webhook delivery for the provider named
// in the path. Providers retry non-2xx responses, so every parseable
// request is acknowledged with 200 and the outcome reported in the body.
//
//	POST /webhooks/{provider}
func (h *Handlers) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.pipelines[name]
	if !ok {
		httputil.NotFound(w, "provider not configured: "+name)
		return
	}

	// Limit webhook payload to 5MB to prevent OOM
	r.Body = http.MaxBytesReader(w, r.Body, 5*1024*1024)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, "read body: "+err.Error())
		return
	}

	sig := r.Header.Get(headerSvixSignature)
	ts := r.Header.Get(headerSvixTimestamp)
	if sig == "" {
		// Standard-webhooks alias headers.
		sig = r.Header.Get("Webhook-Signature")
		ts = r.Header.Get("Webhook-Timestamp")
	}

	httputil.OK(w, p.ProcessWebhook(r.Context(), payload, sig, ts))
}

// CampaignMetrics aggregates stored events into campaign engagement rates.
//
//	GET /api/campaigns/{id}/metrics
func (h *Handlers) CampaignMetrics(w http.ResponseWriter, r *http.Request) {
	p := h.metricsPipeline()
	if p == nil {
		httputil.InternalError(w, errors.New("no pipeline configured"))
		return
	}

	m, err := p.Metrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, m)
}
