package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/breaker"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/service/pipeline"
	"github.com/ignite/outreach/internal/service/queue"
	"github.com/ignite/outreach/internal/service/tracker"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memQueueRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.QueueEntry
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{entries: make(map[string]*domain.QueueEntry)}
}

func (m *memQueueRepo) Create(ctx context.Context, e *domain.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memQueueRepo) Get(ctx context.Context, id string) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, queue.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memQueueRepo) GetByProviderMessageID(ctx context.Context, pmid string) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ProviderMessageID != nil && *e.ProviderMessageID == pmid {
			cp := *e
			return &cp, nil
		}
	}
	return nil, queue.ErrEntryNotFound
}

func (m *memQueueRepo) Update(ctx context.Context, id string, u queue.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return queue.ErrEntryNotFound
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.RetryCount != nil {
		e.RetryCount = *u.RetryCount
	}
	if u.LastAttemptAt != nil {
		e.LastAttemptAt = u.LastAttemptAt
	}
	if u.NextRetryAt != nil {
		e.NextRetryAt = u.NextRetryAt
	}
	if u.ClearNextRetryAt {
		e.NextRetryAt = nil
	}
	if u.LastError != nil {
		e.LastError = u.LastError
	}
	if u.ClearLastError {
		e.LastError = nil
	}
	if u.ProviderMessageID != nil {
		e.ProviderMessageID = u.ProviderMessageID
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (m *memQueueRepo) Claim(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	if e.Status != domain.QueuePending && e.Status != domain.QueueFailed {
		return false, nil
	}
	e.Status = domain.QueueProcessing
	return true, nil
}

func (m *memQueueRepo) GetByStatus(ctx context.Context, status domain.QueueEntryStatus, limit int) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQueueRepo) GetReadyForRetry(ctx context.Context, now time.Time, limit int) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if e.Status == domain.QueueFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(now) {
			out = append(out, *e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQueueRepo) GetBouncedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if e.Status == domain.QueueBounced && e.CreatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memQueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueEntryStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.QueueEntryStatus]int)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *memQueueRepo) MeanRetryCount(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return 0, nil
	}
	total := 0
	for _, e := range m.entries {
		total += e.RetryCount
	}
	return float64(total) / float64(len(m.entries)), nil
}

func (m *memQueueRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

type memLeadRepo struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead
}

func newMemLeadRepo() *memLeadRepo {
	return &memLeadRepo{leads: make(map[string]*domain.Lead)}
}

func (m *memLeadRepo) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, tracker.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLeadRepo) CreateLead(ctx context.Context, l *domain.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.leads[l.ID] = &cp
	return l.ID, nil
}

func (m *memLeadRepo) UpdateLead(ctx context.Context, id string, u tracker.LeadUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return tracker.ErrLeadNotFound
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.LastContactedAt != nil {
		l.LastContactedAt = u.LastContactedAt
	}
	l.UpdatedAt = time.Now()
	return nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.StatusHistoryEntry
}

func (m *memHistoryRepo) Append(ctx context.Context, e *domain.StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memHistoryRepo) ListByLead(ctx context.Context, leadID string) ([]domain.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StatusHistoryEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].LeadID == leadID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type memEventRepo struct {
	mu   sync.Mutex
	rows []domain.StoredEvent
}

func (m *memEventRepo) Insert(ctx context.Context, ev *domain.StoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *ev)
	return nil
}

func (m *memEventRepo) Select(ctx context.Context, f domain.EventFilter) ([]domain.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StoredEvent
	for _, r := range m.rows {
		if f.CampaignID != "" && r.CampaignID != f.CampaignID {
			continue
		}
		if f.LeadID != "" && r.LeadID != f.LeadID {
			continue
		}
		if len(f.Types) > 0 {
			match := false
			for _, t := range f.Types {
				if r.Type == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// scriptedClient is a provider client whose send and parse behavior tests
// control directly.
type scriptedClient struct {
	mu       sync.Mutex
	sendErr  error
	sent     []provider.Message
	event    *provider.NormalizedEvent
	parseErr error
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) SendEmail(ctx context.Context, msg *provider.Message) (*provider.SendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sent = append(c.sent, *msg)
	return &provider.SendReceipt{
		MessageID:  fmt.Sprintf("prov-%d", len(c.sent)),
		AcceptedAt: time.Now(),
	}, nil
}

func (c *scriptedClient) ParseWebhook(payload []byte, signature, timestamp string) (*provider.NormalizedEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parseErr != nil {
		return nil, c.parseErr
	}
	return c.event, nil
}

func (c *scriptedClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type testEnv struct {
	handler   http.Handler
	queueRepo *memQueueRepo
	leadRepo  *memLeadRepo
	events    *memEventRepo
	client    *scriptedClient
	queueSvc  *queue.Service
	tracker   *tracker.Service
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	queueRepo := newMemQueueRepo()
	leadRepo := newMemLeadRepo()
	histRepo := &memHistoryRepo{}
	events := &memEventRepo{}
	client := &scriptedClient{}

	brk := breaker.New(breaker.Config{
		Name:             "email-provider",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		ResetTimeout:     time.Minute,
	})

	queueSvc := queue.NewService(queueRepo, client, brk, nil, events, queue.Config{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2,
	})
	trackerSvc := tracker.NewService(leadRepo, histRepo)
	pipe := pipeline.NewService(client, events, trackerSvc, queueSvc, nil, pipeline.Config{})

	h := NewHandlers(queueSvc, trackerSvc, map[string]*pipeline.Service{"resend": pipe}, config.QueueConfig{
		BatchSize:             10,
		BounceRetryMaxAgeDays: 7,
	})
	hc := NewHealthChecker(nil, nil, queueSvc.BreakerState)

	return &testEnv{
		handler:   NewServer(h, hc).Handler(),
		queueRepo: queueRepo,
		leadRepo:  leadRepo,
		events:    events,
		client:    client,
		queueSvc:  queueSvc,
		tracker:   trackerSvc,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

// ---------------------------------------------------------------------------
// Queue endpoints
// ---------------------------------------------------------------------------

func TestEnqueueAndFetchEmail(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/queue/emails", map[string]string{
		"to":        "prospect@example.com",
		"from":      "sales@ignite.com",
		"subject":   "Quick question",
		"html_body": "<p>Hi there</p>",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]string
	decodeBody(t, w, &created)
	require.NotEmpty(t, created["id"])
	assert.Equal(t, "pending", created["status"])

	w = env.do(t, http.MethodGet, "/api/queue/emails/"+created["id"], nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entry domain.QueueEntry
	decodeBody(t, w, &entry)
	assert.Equal(t, domain.QueuePending, entry.Status)
	assert.Equal(t, "prospect@example.com", entry.To)
}

func TestEnqueueEmailValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/queue/emails", map[string]string{
		"from":    "sales@ignite.com",
		"subject": "no recipient",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/queue/emails/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessPendingDrainsQueue(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/queue/emails", map[string]string{
			"to":        fmt.Sprintf("lead%d@example.com", i),
			"from":      "sales@ignite.com",
			"subject":   "Hello",
			"html_body": "<p>Hi</p>",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/queue/process", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res domain.BatchResult
	decodeBody(t, w, &res)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, env.client.sentCount())
}

func TestQueueStatsEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/queue/emails", map[string]string{
		"to":        "prospect@example.com",
		"from":      "sales@ignite.com",
		"subject":   "Hello",
		"html_body": "<p>Hi</p>",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/queue/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.QueueStats
	decodeBody(t, w, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.QueuePending])
	assert.Equal(t, "closed", stats.BreakerState)
}

// ---------------------------------------------------------------------------
// Breaker endpoints
// ---------------------------------------------------------------------------

func TestBreakerStatusAndReset(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/breaker", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "closed", body["state"])

	// Three consecutive provider failures trip the circuit.
	env.client.sendErr = &provider.APIError{Provider: "scripted", StatusCode: 500, Message: "boom"}
	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/api/queue/emails", map[string]string{
			"to":        fmt.Sprintf("lead%d@example.com", i),
			"from":      "sales@ignite.com",
			"subject":   "Hello",
			"html_body": "<p>Hi</p>",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	env.do(t, http.MethodPost, "/api/queue/process", nil)

	w = env.do(t, http.MethodGet, "/api/breaker", nil)
	decodeBody(t, w, &body)
	assert.Equal(t, "open", body["state"])

	w = env.do(t, http.MethodPost, "/api/breaker/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &body)
	assert.Equal(t, "closed", body["state"])
}

// ---------------------------------------------------------------------------
// Lead endpoints
// ---------------------------------------------------------------------------

func registerLead(t *testing.T, env *testEnv, email string) domain.Lead {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/leads", map[string]string{
		"email":   email,
		"name":    "Jamie",
		"company": "Acme",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var lead domain.Lead
	decodeBody(t, w, &lead)
	require.NotEmpty(t, lead.ID)
	return lead
}

func TestLeadLifecycleEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	lead := registerLead(t, env, "prospect@example.com")
	assert.Equal(t, domain.LeadPending, lead.Status)

	w := env.do(t, http.MethodGet, "/api/leads/"+lead.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/leads/"+lead.ID+"/status", map[string]string{
		"status": "emailed",
		"reason": "first touch",
		"actor":  "ops@ignite.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated domain.Lead
	decodeBody(t, w, &updated)
	assert.Equal(t, domain.LeadEmailed, updated.Status)
	assert.NotNil(t, updated.LastContactedAt)

	// emailed -> pending is not an edge in the lifecycle.
	w = env.do(t, http.MethodPost, "/api/leads/"+lead.ID+"/status", map[string]string{
		"status": "pending",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/leads/"+lead.ID+"/status", map[string]string{
		"status": "archived",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/leads/no-such-lead/status", map[string]string{
		"status": "emailed",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/leads/"+lead.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var history []domain.StatusHistoryEntry
	decodeBody(t, w, &history)
	require.Len(t, history, 1)
	assert.Equal(t, domain.LeadPending, history[0].FromStatus)
	assert.Equal(t, domain.LeadEmailed, history[0].ToStatus)
	assert.Equal(t, "first touch", history[0].Reason)
}

func TestLeadValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/leads", map[string]string{"name": "No Email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/leads/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeadBatchStatusEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	lead := registerLead(t, env, "batch@example.com")

	w := env.do(t, http.MethodPost, "/api/leads/status/batch", []map[string]string{
		{"lead_id": lead.ID, "status": "emailed"},
		{"lead_id": "no-such-lead", "status": "emailed"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var results []tracker.BatchResult
	decodeBody(t, w, &results)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Lead)
	assert.Empty(t, results[0].Error)
	assert.Nil(t, results[1].Lead)
	assert.NotEmpty(t, results[1].Error)

	w = env.do(t, http.MethodPost, "/api/leads/status/batch", []map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---------------------------------------------------------------------------
// Webhook endpoints
// ---------------------------------------------------------------------------

func TestWebhookBounceUpdatesLead(t *testing.T) {
	env := setupTestEnv(t)
	lead := registerLead(t, env, "bounce@example.com")

	env.client.event = &provider.NormalizedEvent{
		Type:            provider.EventBounced,
		MessageID:       "msg-1",
		Recipient:       "bounce@example.com",
		OccurredAt:      time.Now(),
		Tags:            []string{"lead-" + lead.ID, "campaign-q3"},
		BouncePermanent: true,
		BounceCode:      "550",
		BounceMessage:   "mailbox unavailable",
	}

	w := env.do(t, http.MethodPost, "/webhooks/resend", map[string]string{"raw": "payload"})
	require.Equal(t, http.StatusOK, w.Code)

	var res pipeline.Result
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "bounced", res.EventType)
	assert.Equal(t, lead.ID, res.LeadID)
	assert.True(t, res.StatusUpdated)

	got, err := env.leadRepo.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadDeclined, got.Status)
}

func TestWebhookUnknownProvider(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/webhooks/postmark", map[string]string{"raw": "payload"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookBadSignatureStillAcknowledged(t *testing.T) {
	env := setupTestEnv(t)
	env.client.parseErr = provider.ErrBadSignature

	w := env.do(t, http.MethodPost, "/webhooks/resend", map[string]string{"raw": "payload"})
	require.Equal(t, http.StatusOK, w.Code)

	var res pipeline.Result
	decodeBody(t, w, &res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

// ---------------------------------------------------------------------------
// Campaign metrics
// ---------------------------------------------------------------------------

func TestCampaignMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	now := time.Now()
	seed := []domain.StoredEvent{
		{ID: "1", Type: domain.EventSent, CampaignID: "q3", Recipient: "a@example.com", OccurredAt: now},
		{ID: "2", Type: domain.EventSent, CampaignID: "q3", Recipient: "b@example.com", OccurredAt: now},
		{ID: "3", Type: domain.EventDelivered, CampaignID: "q3", Recipient: "a@example.com", OccurredAt: now},
		{ID: "4", Type: domain.EventOpened, CampaignID: "q3", Recipient: "a@example.com", OccurredAt: now},
		{ID: "5", Type: domain.EventOpened, CampaignID: "q3", Recipient: "a@example.com", OccurredAt: now},
	}
	for i := range seed {
		require.NoError(t, env.events.Insert(context.Background(), &seed[i]))
	}

	w := env.do(t, http.MethodGet, "/api/campaigns/q3/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var m domain.EmailMetrics
	decodeBody(t, w, &m)
	assert.Equal(t, "q3", m.CampaignID)
	assert.Equal(t, 2, m.Sent)
	assert.Equal(t, 1, m.UniqueDelivered)
	// Two opens by the same recipient count once.
	assert.Equal(t, 1, m.UniqueOpened)
}

// ---------------------------------------------------------------------------
// Health endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	decodeBody(t, w, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "skipped", health.Checks["database"].Status)
	assert.Equal(t, "up", health.Checks["breaker"].Status)

	w = env.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
