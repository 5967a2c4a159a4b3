// Package provider contains the email transport adapters. Each adapter
// speaks one provider's send API and normalizes that provider's webhook
// payloads into a neutral event the pipeline can consume.
package provider

import (
	"context"
	"time"
)

// Message is a single outbound email handed to an adapter.
type Message struct {
	To         string
	FromName   string
	FromEmail  string
	ReplyTo    string
	Subject    string
	HTMLBody   string
	TextBody   string
	LeadID     string
	CampaignID string
	Headers    map[string]string
}

// SendReceipt reports a provider-accepted send.
type SendReceipt struct {
	MessageID  string
	AcceptedAt time.Time
}

// Canonical event types emitted by ParseWebhook. Adapters translate their
// provider's native names into these; anything else passes through raw and
// the pipeline rejects it.
const (
	EventDelivered    = "delivered"
	EventOpened       = "opened"
	EventClicked      = "clicked"
	EventBounced      = "bounced"
	EventComplained   = "complained"
	EventUnsubscribed = "unsubscribed"
	EventFailed       = "failed"
	EventReplied      = "replied"
)

// NormalizedEvent is a provider-neutral view of one webhook event.
// Only the fields relevant to the event type are populated.
type NormalizedEvent struct {
	Type       string
	MessageID  string
	Recipient  string
	OccurredAt time.Time

	// Tagging carried on the message, used for lead attribution.
	Tags     []string
	Metadata map[string]string

	// Bounce details.
	BouncePermanent bool
	BounceCode      string
	BounceMessage   string

	// Engagement details.
	URL       string
	UserAgent string
	IPAddress string

	// Reply details.
	Subject string
	Snippet string

	// Failure / complaint details.
	Reason       string
	FeedbackType string
}

// EmailClient is the provider-facing port of the delivery subsystem.
// SendEmail must return an error the retry classifier understands; adapters
// wrap HTTP failures in *APIError.
type EmailClient interface {
	Name() string
	SendEmail(ctx context.Context, msg *Message) (*SendReceipt, error)
	ParseWebhook(payload []byte, signature, timestamp string) (*NormalizedEvent, error)
}
