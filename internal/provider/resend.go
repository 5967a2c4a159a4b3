package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// signatureTolerance bounds how far a webhook timestamp may drift from the
// receiver's clock before the payload is rejected as stale.
const signatureTolerance = 5 * time.Minute

// resendEventTypes maps Resend webhook types to canonical event names.
// email.received is Resend's inbound delivery; for an outreach domain any
// inbound mail is a reply.
var resendEventTypes = map[string]string{
	"email.delivered":        EventDelivered,
	"email.opened":           EventOpened,
	"email.clicked":          EventClicked,
	"email.bounced":          EventBounced,
	"email.complained":       EventComplained,
	"email.unsubscribed":     EventUnsubscribed,
	"contact.unsubscribed":   EventUnsubscribed,
	"email.failed":           EventFailed,
	"email.delivery_delayed": EventBounced,
	"email.replied":          EventReplied,
	"email.received":         EventReplied,
}

// ResendClient sends emails via the Resend REST API and parses Resend
// webhook deliveries.
type ResendClient struct {
	apiKey        string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
}

// NewResendClient creates a client targeting the Resend v1 API.
func NewResendClient(apiKey, baseURL, webhookSecret string, timeout time.Duration) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResendClient{
		apiKey:        apiKey,
		baseURL:       baseURL,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Name identifies the adapter in logs and stats.
func (c *ResendClient) Name() string { return "resend" }

// SendEmail delivers a single email through Resend.
func (c *ResendClient) SendEmail(ctx context.Context, msg *Message) (*SendReceipt, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("resend API key not configured")
	}

	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	payload := map[string]interface{}{
		"from":    from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTMLBody,
	}
	if msg.TextBody != "" {
		payload["text"] = msg.TextBody
	}
	if msg.ReplyTo != "" {
		payload["reply_to"] = msg.ReplyTo
	}
	if len(msg.Headers) > 0 {
		payload["headers"] = msg.Headers
	}

	var tags []map[string]string
	if msg.LeadID != "" {
		tags = append(tags, map[string]string{"name": "lead_id", "value": msg.LeadID})
	}
	if msg.CampaignID != "" {
		tags = append(tags, map[string]string{"name": "campaign_id", "value": msg.CampaignID})
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		json.Unmarshal(body, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, &APIError{
			Provider:   "resend",
			StatusCode: resp.StatusCode,
			Code:       apiErr.Name,
			Message:    apiErr.Message,
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &result)

	log.Printf("[Resend] Sent to %s (id: %s)", logger.RedactEmail(msg.To), result.ID)

	return &SendReceipt{MessageID: result.ID, AcceptedAt: time.Now()}, nil
}

// ParseWebhook verifies the webhook signature and normalizes the payload.
// The signature covers "{timestamp}.{payload}" with HMAC-SHA256 under the
// configured secret; timestamps older than the tolerance are rejected.
func (c *ResendClient) ParseWebhook(payload []byte, signature, timestamp string) (*NormalizedEvent, error) {
	if c.webhookSecret != "" {
		if err := verifyWebhookSignature(c.webhookSecret, payload, signature, timestamp); err != nil {
			return nil, err
		}
	}

	var evt struct {
		Type      string    `json:"type"`
		CreatedAt time.Time `json:"created_at"`
		Data      struct {
			EmailID string          `json:"email_id"`
			From    string          `json:"from"`
			To      []string        `json:"to"`
			Subject string          `json:"subject"`
			Text    string          `json:"text"`
			Tags    json.RawMessage `json:"tags"`
			Bounce  *struct {
				Type    string `json:"type"`
				SubType string `json:"subType"`
				Message string `json:"message"`
			} `json:"bounce"`
			Open *struct {
				UserAgent string `json:"userAgent"`
				IPAddress string `json:"ipAddress"`
			} `json:"open"`
			Click *struct {
				Link      string `json:"link"`
				UserAgent string `json:"userAgent"`
				IPAddress string `json:"ipAddress"`
			} `json:"click"`
			Failed *struct {
				Reason string `json:"reason"`
			} `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("resend webhook: invalid JSON: %w", err)
	}

	if evt.Type == "email.sent" {
		// The queue records the send when the API call succeeds.
		return nil, ErrNonEvent
	}

	occurredAt := evt.CreatedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	recipient := ""
	if len(evt.Data.To) > 0 {
		recipient = evt.Data.To[0]
	}

	tags, meta := parseResendTags(evt.Data.Tags)

	normalized := &NormalizedEvent{
		Type:       evt.Type,
		MessageID:  evt.Data.EmailID,
		Recipient:  recipient,
		OccurredAt: occurredAt,
		Tags:       tags,
		Metadata:   meta,
	}
	if canonical, ok := resendEventTypes[evt.Type]; ok {
		normalized.Type = canonical
	}

	switch evt.Type {
	case "email.bounced":
		if evt.Data.Bounce != nil {
			normalized.BouncePermanent = strings.EqualFold(evt.Data.Bounce.Type, "permanent")
			normalized.BounceCode = evt.Data.Bounce.SubType
			normalized.BounceMessage = evt.Data.Bounce.Message
		}
	case "email.delivery_delayed":
		normalized.BouncePermanent = false
		normalized.BounceMessage = "delivery delayed"
	case "email.opened":
		if evt.Data.Open != nil {
			normalized.UserAgent = evt.Data.Open.UserAgent
			normalized.IPAddress = evt.Data.Open.IPAddress
		}
	case "email.clicked":
		if evt.Data.Click != nil {
			normalized.URL = evt.Data.Click.Link
			normalized.UserAgent = evt.Data.Click.UserAgent
			normalized.IPAddress = evt.Data.Click.IPAddress
		}
	case "email.failed":
		if evt.Data.Failed != nil {
			normalized.Reason = evt.Data.Failed.Reason
		}
	case "email.complained":
		normalized.FeedbackType = "abuse"
	case "email.replied", "email.received":
		normalized.Subject = evt.Data.Subject
		normalized.Snippet = snippet(evt.Data.Text)
	}

	return normalized, nil
}

// parseResendTags accepts the tag shapes Resend has shipped over time:
// an object map, a plain string list, or a list of name/value pairs.
func parseResendTags(raw json.RawMessage) ([]string, map[string]string) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil && len(asMap) > 0 {
		return nil, asMap
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 {
		return asList, nil
	}

	var asPairs []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &asPairs); err == nil && len(asPairs) > 0 {
		meta := make(map[string]string, len(asPairs))
		for _, p := range asPairs {
			meta[p.Name] = p.Value
		}
		return nil, meta
	}

	return nil, nil
}

// snippet trims a reply body down to a short preview for keyword matching
// and history notes.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 280 {
		return text[:280]
	}
	return text
}

// verifyWebhookSignature checks an HMAC-SHA256 signature over
// "{timestamp}.{payload}". The signature header may carry several
// space-separated candidates ("v1,<base64>" or bare base64); any match
// passes. Secrets may carry the conventional "whsec_" prefix around a
// base64 key.
func verifyWebhookSignature(secret string, payload []byte, signature, timestamp string) error {
	if signature == "" || timestamp == "" {
		return fmt.Errorf("resend webhook: missing signature headers: %w", ErrBadSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("resend webhook: bad timestamp %q: %w", timestamp, ErrBadSignature)
	}
	if drift := time.Since(time.Unix(ts, 0)); drift > signatureTolerance || drift < -signatureTolerance {
		return fmt.Errorf("resend webhook: timestamp outside tolerance: %w", ErrBadSignature)
	}

	key := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			key = decoded
		} else {
			key = []byte(trimmed)
		}
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(signature) {
		candidate = strings.TrimPrefix(candidate, "v1,")
		candidate = strings.TrimPrefix(candidate, "v1=")
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("resend webhook: %w", ErrBadSignature)
}
