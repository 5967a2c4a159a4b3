// Package notify pushes accepted lead status changes to a configured
// webhook endpoint. Delivery is fire-and-forget: a slow or dead endpoint
// never blocks or fails the transition that produced the change.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httpretry"
)

// Header names for the signature scheme consumers verify against.
const (
	HeaderSignature = "X-Outreach-Signature"
	HeaderTimestamp = "X-Outreach-Timestamp"
)

// Config describes the downstream endpoint.
type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// Notifier delivers status-change webhooks. Register HandleStatusChange as a
// tracker subscriber; call Flush before shutdown to drain in-flight posts.
type Notifier struct {
	client  *httpretry.Client
	url     string
	secret  []byte
	timeout time.Duration
	wg      sync.WaitGroup
}

// New builds a Notifier. base may be nil for the default HTTP client.
func New(base httpretry.Doer, cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client:  httpretry.New(base, cfg.MaxAttempts),
		url:     cfg.URL,
		secret:  []byte(cfg.Secret),
		timeout: timeout,
	}
}

type statusPayload struct {
	Type string `json:"type"`
	domain.StatusChange
}

// HandleStatusChange matches tracker.SubscriberFunc. The POST runs on its
// own goroutine with a detached context so the originating request's
// cancellation cannot cut a delivery short.
func (n *Notifier) HandleStatusChange(_ context.Context, change domain.StatusChange) {
	body, err := json.Marshal(statusPayload{Type: "lead.status_changed", StatusChange: change})
	if err != nil {
		log.Printf("[Notify] Marshal status change for lead %s: %v", change.LeadID, err)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.post(ctx, body, change.LeadID)
	}()
}

func (n *Notifier) post(ctx context.Context, body []byte, leadID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[Notify] Build request for lead %s: %v", leadID, err)
		return
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign(n.secret, ts, body))

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[Notify] Webhook for lead %s failed: %v", leadID, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		log.Printf("[Notify] Webhook for lead %s returned %d", leadID, resp.StatusCode)
	}
}

// Flush waits for in-flight deliveries. Call on shutdown.
func (n *Notifier) Flush() {
	n.wg.Wait()
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body". Exported so
// consumers and tests can verify deliveries.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
