package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/tracker"
)

type registerLeadRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// RegisterLead creates a lead in pending status.
//
//	POST /api/leads
func (h *Handlers) RegisterLead(w http.ResponseWriter, r *http.Request) {
	var req registerLeadRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}

	lead, err := h.tracker.RegisterLead(r.Context(), req.Email, req.Name, req.Company)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.Created(w, lead)
}

// GetLead returns a single lead by id.
//
//	GET /api/leads/{id}
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.tracker.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// UpdateLeadStatus moves a lead through the lifecycle. Illegal transitions
// come back as 409 with the allowed moves in the error message.
//
//	POST /api/leads/{id}/status
func (h *Handlers) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		httputil.BadRequest(w, "status is required")
		return
	}

	lead, err := h.tracker.UpdateLeadStatus(r.Context(), chi.URLParam(r, "id"), domain.LeadStatus(req.Status), tracker.UpdateOptions{
		Reason: req.Reason,
		Notes:  req.Notes,
		Actor:  req.Actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httputil.OK(w, lead)
}

// UpdateLeadStatusBatch applies a list of status updates independently and
// returns the per-item outcomes.
//
//	POST /api/leads/status/batch
func (h *Handlers) UpdateLeadStatusBatch(w http.ResponseWriter, r *http.Request) {
	var items []tracker.BatchItem
	if !httputil.Decode(w, r, &items) {
		return
	}
	if len(items) == 0 {
		httputil.BadRequest(w, "empty batch")
		return
	}

	httputil.OK(w, h.tracker.UpdateStatusBatch(r.Context(), items))
}

// LeadHistory returns the audit trail for a lead, newest first.
//
//	GET /api/leads/{id}/history
func (h *Handlers) LeadHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracker.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, entries)
}
