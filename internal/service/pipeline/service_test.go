package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/service/pipeline"
	"github.com/ignite/outreach/internal/service/tracker"
)

// scriptClient returns a canned parse result; the adapters' own tests cover
// real payloads and signatures.
type scriptClient struct {
	ev  *provider.NormalizedEvent
	err error
}

func (c *scriptClient) Name() string { return "script" }

func (c *scriptClient) SendEmail(context.Context, *provider.Message) (*provider.SendReceipt, error) {
	return nil, errors.New("not used")
}

func (c *scriptClient) ParseWebhook([]byte, string, string) (*provider.NormalizedEvent, error) {
	return c.ev, c.err
}

// memEvents is an in-memory event store.
type memEvents struct {
	mu        sync.Mutex
	rows      []domain.StoredEvent
	insertErr error
}

func (m *memEvents) Insert(_ context.Context, ev *domain.StoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.rows = append(m.rows, *ev)
	return nil
}

func (m *memEvents) Select(_ context.Context, f domain.EventFilter) ([]domain.StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StoredEvent
	for _, row := range m.rows {
		if f.CampaignID != "" && row.CampaignID != f.CampaignID {
			continue
		}
		if f.LeadID != "" && row.LeadID != f.LeadID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memLeads / memHistory back a real tracker so routing tests exercise the
// actual state machine.
type memLeads struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead
}

func newMemLeads() *memLeads { return &memLeads{leads: make(map[string]*domain.Lead)} }

func (m *memLeads) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, tracker.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLeads) CreateLead(_ context.Context, l *domain.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memLeads) UpdateLead(_ context.Context, id string, u tracker.LeadUpdate) error {
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
		t := *u.LastContactedAt
		l.LastContactedAt = &t
	}
	return nil
}

func (m *memLeads) seed(id string, status domain.LeadStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[id] = &domain.Lead{ID: id, Email: id + "@acme.com", Status: status}
}

func (m *memLeads) status(id string) domain.LeadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id].Status
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.StatusHistoryEntry
}

func (m *memHistory) Append(_ context.Context, e *domain.StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memHistory) ListByLead(_ context.Context, leadID string) ([]domain.StatusHistoryEntry, error) {
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

func (m *memHistory) countFor(leadID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.LeadID == leadID {
			n++
		}
	}
	return n
}

// fakeQueue records HandleWebhookEvent calls.
type fakeQueue struct {
	mu    sync.Mutex
	calls []string // "messageID/eventType"
}

func (f *fakeQueue) HandleWebhookEvent(_ context.Context, providerMessageID string, eventType domain.EventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s", providerMessageID, eventType))
	return nil
}

// memArchive records archived payloads.
type memArchive struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (m *memArchive) Archive(_ context.Context, payload []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

type pipelineEnv struct {
	svc     *pipeline.Service
	events  *memEvents
	leads   *memLeads
	history *memHistory
	queue   *fakeQueue
	archive *memArchive
}

func newPipelineEnv(ev *provider.NormalizedEvent, parseErr error) *pipelineEnv {
	env := &pipelineEnv{
		events:  &memEvents{},
		leads:   newMemLeads(),
		history: &memHistory{},
		queue:   &fakeQueue{},
		archive: &memArchive{},
	}
	trk := tracker.NewService(env.leads, env.history)
	env.svc = pipeline.NewService(&scriptClient{ev: ev, err: parseErr}, env.events, trk, env.queue, env.archive, pipeline.Config{})
	return env
}

func deliveredEvent() *provider.NormalizedEvent {
	return &provider.NormalizedEvent{
		Type:       provider.EventDelivered,
		MessageID:  "msg-1",
		Recipient:  "lead@acme.com",
		OccurredAt: time.Now(),
		Metadata:   map[string]string{"lead_id": "lead-1", "campaign_id": "camp-1"},
	}
}

func TestProcessWebhookDelivered(t *testing.T) {
	env := newPipelineEnv(deliveredEvent(), nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte(`{"type":"email.delivered"}`), "sig", "ts")

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.EventID == "" || res.EventType != "delivered" || res.LeadID != "lead-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.StatusUpdated {
		t.Fatal("delivered must not move lead status")
	}
	if env.leads.status("lead-1") != domain.LeadEmailed {
		t.Fatal("lead status must be untouched")
	}
	if env.events.count() != 1 {
		t.Fatalf("expected 1 stored event, got %d", env.events.count())
	}
	if len(env.archive.payloads) != 1 {
		t.Fatal("expected raw payload archived")
	}
	if len(env.queue.calls) != 0 {
		t.Fatal("delivered must not signal the queue")
	}
}

func TestProcessWebhookParseError(t *testing.T) {
	env := newPipelineEnv(nil, provider.ErrBadSignature)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "bad", "ts")
	if res.Success {
		t.Fatal("expected failure on bad signature")
	}
	if !strings.Contains(res.Error, "signature") {
		t.Fatalf("expected signature error surfaced, got %q", res.Error)
	}
	if env.events.count() != 0 {
		t.Fatal("failed parse must not persist events")
	}
}

func TestProcessWebhookNonEvent(t *testing.T) {
	env := newPipelineEnv(nil, provider.ErrNonEvent)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")
	if !res.Success {
		t.Fatal("non-events must be acknowledged")
	}
	if res.EventID != "" {
		t.Fatal("non-events must not mint event ids")
	}
	if env.events.count() != 0 {
		t.Fatal("non-events must not be persisted")
	}
}

func TestProcessWebhookMissingLeadAttribution(t *testing.T) {
	ev := deliveredEvent()
	ev.Metadata = nil
	env := newPipelineEnv(ev, nil)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")
	if res.Success {
		t.Fatal("expected attribution failure")
	}
	if !strings.Contains(res.Error, "lead attribution") {
		t.Fatalf("expected descriptive error, got %q", res.Error)
	}
	if env.events.count() != 0 {
		t.Fatal("unattributed events must not be persisted")
	}
}

func TestProcessWebhookUnknownType(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = "email.scheduled"
	env := newPipelineEnv(ev, nil)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")
	if res.Success {
		t.Fatal("expected unknown type to be rejected")
	}
	if !strings.Contains(res.Error, "unknown event type") {
		t.Fatalf("expected unknown type error, got %q", res.Error)
	}
}

func TestLeadIDPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		metadata map[string]string
		want     string
	}{
		{
			name:     "tag wins over metadata",
			tags:     []string{"source-maps", "lead-from-tag"},
			metadata: map[string]string{"lead_id": "from-meta"},
			want:     "from-tag",
		},
		{
			name:     "lead_id wins over leadId",
			metadata: map[string]string{"lead_id": "snake", "leadId": "camel"},
			want:     "snake",
		},
		{
			name:     "leadId fallback",
			metadata: map[string]string{"leadId": "camel"},
			want:     "camel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := deliveredEvent()
			ev.Tags = tt.tags
			ev.Metadata = tt.metadata
			env := newPipelineEnv(ev, nil)
			env.leads.seed(tt.want, domain.LeadEmailed)

			res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")
			if !res.Success {
				t.Fatalf("process failed: %+v", res)
			}
			if res.LeadID != tt.want {
				t.Fatalf("expected lead %q, got %q", tt.want, res.LeadID)
			}
		})
	}
}

// A spam complaint moves an emailed lead to declined with exactly one
// history row.
func TestComplaintDeclinesLead(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventComplained
	ev.FeedbackType = "abuse"
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.Success || !res.StatusUpdated {
		t.Fatalf("expected status update, got %+v", res)
	}
	if got := env.leads.status("lead-1"); got != domain.LeadDeclined {
		t.Fatalf("expected declined, got %s", got)
	}
	if n := env.history.countFor("lead-1"); n != 1 {
		t.Fatalf("expected exactly 1 history row, got %d", n)
	}
	entries, _ := env.history.ListByLead(context.Background(), "lead-1")
	if entries[0].Reason != "spam complaint" {
		t.Fatalf("expected complaint reason, got %q", entries[0].Reason)
	}
}

func TestPermanentBounceDeclinesAndSignalsQueue(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventBounced
	ev.BouncePermanent = true
	ev.BounceCode = "550"
	ev.BounceMessage = "user unknown"
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.StatusUpdated {
		t.Fatalf("expected status update, got %+v", res)
	}
	if got := env.leads.status("lead-1"); got != domain.LeadDeclined {
		t.Fatalf("expected declined, got %s", got)
	}
	if len(env.queue.calls) != 1 || env.queue.calls[0] != "msg-1/bounced" {
		t.Fatalf("expected queue bounce signal, got %v", env.queue.calls)
	}
}

func TestTemporaryBounceSignalsQueueOnly(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventBounced
	ev.BouncePermanent = false
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if res.StatusUpdated {
		t.Fatal("temporary bounce must not move lead status")
	}
	if got := env.leads.status("lead-1"); got != domain.LeadEmailed {
		t.Fatalf("expected emailed, got %s", got)
	}
	if len(env.queue.calls) != 1 || env.queue.calls[0] != "msg-1/bounced" {
		t.Fatalf("expected queue bounce signal, got %v", env.queue.calls)
	}
}

// Redelivery against an already-declined lead acknowledges without a second
// transition and still mints a fresh event row.
func TestTerminalLeadRedeliveryIsNoOp(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventComplained
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadDeclined)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.StatusUpdated {
		t.Fatal("terminal lead must not be re-transitioned")
	}
	if n := env.history.countFor("lead-1"); n != 0 {
		t.Fatalf("expected no history rows, got %d", n)
	}
	if env.events.count() != 1 {
		t.Fatalf("redelivery still mints an event row, got %d", env.events.count())
	}
}

// A reply asking to book a call moves the lead to called and flags booking
// intent in the history notes.
func TestReplyWithBookingIntent(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventReplied
	ev.Subject = "Re: Quick question"
	ev.Snippet = "Sounds good, can we book a call tomorrow?"
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.StatusUpdated {
		t.Fatalf("expected status update, got %+v", res)
	}
	if got := env.leads.status("lead-1"); got != domain.LeadCalled {
		t.Fatalf("expected called, got %s", got)
	}
	entries, _ := env.history.ListByLead(context.Background(), "lead-1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Notes, "booking intent detected") {
		t.Fatalf("expected booking intent note, got %q", entries[0].Notes)
	}
}

func TestReplyWithoutBookingIntent(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventReplied
	ev.Subject = "Re: Quick question"
	ev.Snippet = "Thanks, we already have a vendor."
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.StatusUpdated {
		t.Fatalf("expected status update, got %+v", res)
	}
	entries, _ := env.history.ListByLead(context.Background(), "lead-1")
	if strings.Contains(entries[0].Notes, "booking intent") {
		t.Fatalf("unexpected booking intent note: %q", entries[0].Notes)
	}
}

func TestFailedSignalsQueue(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventFailed
	ev.Reason = "rendering failure"
	env := newPipelineEnv(ev, nil)
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.Success || res.StatusUpdated {
		t.Fatalf("expected acknowledged no-transition result, got %+v", res)
	}
	if len(env.queue.calls) != 1 || env.queue.calls[0] != "msg-1/failed" {
		t.Fatalf("expected queue failed signal, got %v", env.queue.calls)
	}
}

func TestPersistFailureStillRoutes(t *testing.T) {
	ev := deliveredEvent()
	ev.Type = provider.EventComplained
	env := newPipelineEnv(ev, nil)
	env.events.insertErr = errors.New("db down")
	env.leads.seed("lead-1", domain.LeadEmailed)

	res := env.svc.ProcessWebhook(context.Background(), []byte("{}"), "sig", "ts")

	if !res.Success || !res.StatusUpdated {
		t.Fatalf("persist failure must not block routing, got %+v", res)
	}
	if got := env.leads.status("lead-1"); got != domain.LeadDeclined {
		t.Fatalf("expected declined, got %s", got)
	}
}

func seedEvent(events *memEvents, typ domain.EventType, recipient string) {
	events.Insert(context.Background(), &domain.StoredEvent{
		ID:         fmt.Sprintf("%s-%s-%d", typ, recipient, events.count()),
		Type:       typ,
		CampaignID: "camp-1",
		Recipient:  recipient,
		OccurredAt: time.Now(),
	})
}

// Unique counts deduplicate per recipient and rates divide safely.
func TestMetricsDedupe(t *testing.T) {
	env := newPipelineEnv(nil, provider.ErrNonEvent)

	for i := 0; i < 3; i++ {
		seedEvent(env.events, domain.EventSent, fmt.Sprintf("r%d@acme.com", i))
	}
	seedEvent(env.events, domain.EventDelivered, "r0@acme.com")
	seedEvent(env.events, domain.EventDelivered, "r0@acme.com") // redelivered
	seedEvent(env.events, domain.EventDelivered, "r1@acme.com")
	seedEvent(env.events, domain.EventOpened, "r0@acme.com")
	seedEvent(env.events, domain.EventOpened, "r0@acme.com") // second open
	seedEvent(env.events, domain.EventClicked, "r0@acme.com")
	seedEvent(env.events, domain.EventBounced, "r2@acme.com")
	seedEvent(env.events, domain.EventReplied, "r1@acme.com")

	m, err := env.svc.Metrics(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	if m.Sent != 3 {
		t.Fatalf("expected 3 sent, got %d", m.Sent)
	}
	if m.UniqueDelivered != 2 {
		t.Fatalf("expected 2 unique delivered, got %d", m.UniqueDelivered)
	}
	if m.UniqueOpened != 1 {
		t.Fatalf("expected 1 unique opened, got %d", m.UniqueOpened)
	}
	if m.UniqueClicked != 1 {
		t.Fatalf("expected 1 unique clicked, got %d", m.UniqueClicked)
	}
	if m.Bounced != 1 || m.Replied != 1 {
		t.Fatalf("unexpected raw counts: %+v", m)
	}

	assertClose := func(name string, got, want float64) {
		if diff := got - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: expected %f, got %f", name, want, got)
		}
	}
	assertClose("delivery rate", m.DeliveryRate, 2.0/3.0)
	assertClose("open rate", m.OpenRate, 0.5)
	assertClose("click rate", m.ClickRate, 0.5)
	assertClose("bounce rate", m.BounceRate, 1.0/3.0)
	assertClose("reply rate", m.ReplyRate, 0.5)
}

func TestMetricsEmptyCampaign(t *testing.T) {
	env := newPipelineEnv(nil, provider.ErrNonEvent)

	m, err := env.svc.Metrics(context.Background(), "camp-empty")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.Sent != 0 || m.DeliveryRate != 0 || m.OpenRate != 0 || m.BounceRate != 0 {
		t.Fatalf("expected zeroed metrics, got %+v", m)
	}
}
