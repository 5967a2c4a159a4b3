package domain

import "time"

// EventType enumerates the kinds of email engagement events.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventFailed       EventType = "failed"
	EventReplied      EventType = "replied"

	// EventSent is recorded by the send queue when the provider accepts a
	// message. It is a stored row type only and never arrives via webhook,
	// so it has no EmailEvent member.
	EventSent EventType = "sent"
)

// Envelope carries the fields shared by every webhook-derived event.
type Envelope struct {
	EventID           string    `json:"event_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	LeadID            string    `json:"lead_id"`
	CampaignID        string    `json:"campaign_id,omitempty"`
	Recipient         string    `json:"recipient"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// EmailEvent is the closed set of typed engagement events produced by the
// webhook pipeline. The unexported method keeps the set closed: new members
// are added here, and every consumer switch is updated with them.
type EmailEvent interface {
	Kind() EventType
	Meta() Envelope
	sealed()
}

// DeliveredEvent signals the provider handed the message to the recipient server.
type DeliveredEvent struct {
	Envelope
}

// OpenedEvent signals a tracked open.
type OpenedEvent struct {
	Envelope
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// ClickedEvent signals a tracked link click.
type ClickedEvent struct {
	Envelope
	URL string `json:"url,omitempty"`
}

// BouncedEvent signals the recipient server rejected the message.
// Permanent distinguishes hard bounces (bad address) from soft ones
// (mailbox full, greylisting).
type BouncedEvent struct {
	Envelope
	Permanent bool   `json:"permanent"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ComplainedEvent signals a spam complaint (feedback loop report).
type ComplainedEvent struct {
	Envelope
	FeedbackType string `json:"feedback_type,omitempty"`
}

// UnsubscribedEvent signals the recipient opted out.
type UnsubscribedEvent struct {
	Envelope
}

// FailedEvent signals the provider gave up on the message before delivery.
type FailedEvent struct {
	Envelope
	Reason string `json:"reason,omitempty"`
}

// RepliedEvent signals an inbound reply matched to the outbound message.
type RepliedEvent struct {
	Envelope
	Subject       string `json:"subject,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	BookingIntent bool   `json:"booking_intent"`
}

func (e DeliveredEvent) Kind() EventType    { return EventDelivered }
func (e OpenedEvent) Kind() EventType       { return EventOpened }
func (e ClickedEvent) Kind() EventType      { return EventClicked }
func (e BouncedEvent) Kind() EventType      { return EventBounced }
func (e ComplainedEvent) Kind() EventType   { return EventComplained }
func (e UnsubscribedEvent) Kind() EventType { return EventUnsubscribed }
func (e FailedEvent) Kind() EventType       { return EventFailed }
func (e RepliedEvent) Kind() EventType      { return EventReplied }

func (e Envelope) Meta() Envelope { return e }
func (e Envelope) sealed()        {}

// StoredEvent is the persisted form of an engagement event. Rows are
// immutable once written; redelivered webhooks mint new rows.
type StoredEvent struct {
	ID                string    `json:"id" db:"id"`
	Type              EventType `json:"type" db:"event_type"`
	ProviderMessageID string    `json:"provider_message_id" db:"provider_message_id"`
	LeadID            string    `json:"lead_id,omitempty" db:"lead_id"`
	CampaignID        string    `json:"campaign_id,omitempty" db:"campaign_id"`
	Recipient         string    `json:"recipient" db:"recipient"`
	Detail            string    `json:"detail,omitempty" db:"detail"`
	OccurredAt        time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// EventFilter selects stored events for aggregation.
type EventFilter struct {
	CampaignID string
	LeadID     string
	Types      []EventType
	Since      *time.Time
	Until      *time.Time
}

// EmailMetrics aggregates engagement for one campaign. Unique counts are
// deduplicated per recipient; raw counts are not.
type EmailMetrics struct {
	CampaignID      string  `json:"campaign_id"`
	Sent            int     `json:"sent"`
	UniqueDelivered int     `json:"unique_delivered"`
	UniqueOpened    int     `json:"unique_opened"`
	UniqueClicked   int     `json:"unique_clicked"`
	Bounced         int     `json:"bounced"`
	Complained      int     `json:"complained"`
	Unsubscribed    int     `json:"unsubscribed"`
	Replied         int     `json:"replied"`
	Failed          int     `json:"failed"`
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	ReplyRate       float64 `json:"reply_rate"`
}
