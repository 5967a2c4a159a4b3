package api

import (
	"errors"
	"net/http"

	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/pipeline"
	"github.com/ignite/outreach/internal/service/queue"
	"github.com/ignite/outreach/internal/service/tracker"
)

// Handlers holds the service dependencies shared by all HTTP handlers.
type Handlers struct {
	queue     *queue.Service
	tracker   *tracker.Service
	pipelines map[string]*pipeline.Service
	queueCfg  config.QueueConfig
}

// NewHandlers creates a Handlers instance. pipelines maps the webhook path
// segment ("resend", "ses") to the pipeline wired with that provider's
// codec; only configured providers should be present.
func NewHandlers(queueSvc *queue.Service, trackerSvc *tracker.Service, pipelines map[string]*pipeline.Service, queueCfg config.QueueConfig) *Handlers {
	return &Handlers{
		queue:     queueSvc,
		tracker:   trackerSvc,
		pipelines: pipelines,
		queueCfg:  queueCfg,
	}
}

// metricsPipeline returns any configured pipeline. Campaign metrics are
// computed from stored events and do not depend on the provider codec.
func (h *Handlers) metricsPipeline() *pipeline.Service {
	for _, p := range h.pipelines {
		return p
	}
	return nil
}

// writeServiceError maps service sentinel errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrEntryNotFound), errors.Is(err, tracker.ErrLeadNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, queue.ErrInvalidRequest), errors.Is(err, tracker.ErrUnknownStatus):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, tracker.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
