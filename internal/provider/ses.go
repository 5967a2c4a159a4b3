package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// SESClient sends emails via AWS SES (SDK v2) and parses the SNS-wrapped
// event notifications SES publishes.
type SESClient struct {
	region    string
	configSet string
	client    *sesv2.Client
}

// NewSESClient creates an SES client. Initializes the AWS SDK client if
// credentials are provided; otherwise the default credential chain is used.
func NewSESClient(accessKey, secretKey, region, configSet string) *SESClient {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	c := &SESClient{region: region, configSet: configSet}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
	} else {
		c.client = sesv2.NewFromConfig(cfg)
	}
	return c
}

// Name identifies the adapter in logs and stats.
func (c *SESClient) Name() string { return "ses" }

// SendEmail delivers a single email through AWS SES.
func (c *SESClient) SendEmail(ctx context.Context, msg *Message) (*SendReceipt, error) {
	if c.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}

	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if msg.TextBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if c.configSet != "" {
		input.ConfigurationSetName = aws.String(c.configSet)
	}
	if msg.LeadID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name: aws.String("lead_id"), Value: aws.String(msg.LeadID),
		})
	}
	if msg.CampaignID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID),
		})
	}

	result, err := c.client.SendEmail(ctx, input)
	if err != nil {
		return nil, wrapSESError(err)
	}

	messageID := aws.ToString(result.MessageId)
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &SendReceipt{MessageID: messageID, AcceptedAt: time.Now()}, nil
}

// wrapSESError maps SDK exceptions onto APIError so the retry classifier
// sees the right status class. Unrecognized errors pass through and count
// as transient.
func wrapSESError(err error) error {
	var tooMany *types.TooManyRequestsException
	if errors.As(err, &tooMany) {
		return &APIError{Provider: "ses", StatusCode: 429, Code: "TooManyRequests", Message: tooMany.ErrorMessage()}
	}
	var paused *types.SendingPausedException
	if errors.As(err, &paused) {
		return &APIError{Provider: "ses", StatusCode: 503, Code: "SendingPaused", Message: paused.ErrorMessage()}
	}
	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		return &APIError{Provider: "ses", StatusCode: 429, Code: "LimitExceeded", Message: limit.ErrorMessage()}
	}
	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return &APIError{Provider: "ses", StatusCode: 400, Code: "MessageRejected", Message: rejected.ErrorMessage()}
	}
	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &notVerified) {
		return &APIError{Provider: "ses", StatusCode: 400, Code: "MailFromDomainNotVerified", Message: notVerified.ErrorMessage()}
	}
	var suspended *types.AccountSuspendedException
	if errors.As(err, &suspended) {
		return &APIError{Provider: "ses", StatusCode: 403, Code: "AccountSuspended", Message: suspended.ErrorMessage()}
	}
	var bad *types.BadRequestException
	if errors.As(err, &bad) {
		return &APIError{Provider: "ses", StatusCode: 400, Code: "BadRequest", Message: bad.ErrorMessage()}
	}
	return err
}

// snsEnvelope is the SNS notification wrapper around SES events.
type snsEnvelope struct {
	Type         string `json:"Type"`
	SubscribeURL string `json:"SubscribeURL"`
	Message      string `json:"Message"`
	MessageId    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
}

// ParseWebhook unwraps an SNS envelope and normalizes the SES event inside.
// Subscription confirmations are confirmed inline and reported as non-events.
// SNS signs its own payloads; the signature and timestamp arguments are part
// of the shared adapter contract and unused here.
func (c *SESClient) ParseWebhook(payload []byte, signature, timestamp string) (*NormalizedEvent, error) {
	var envelope snsEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("ses webhook: invalid SNS envelope: %w", err)
	}

	switch envelope.Type {
	case "SubscriptionConfirmation":
		log.Printf("[SES] Subscription confirmation received, confirming...")
		if resp, err := http.Get(envelope.SubscribeURL); err != nil {
			log.Printf("[SES] Failed to confirm subscription: %v", err)
		} else {
			resp.Body.Close()
			log.Printf("[SES] Subscription confirmed")
		}
		return nil, ErrNonEvent
	case "UnsubscribeConfirmation":
		return nil, ErrNonEvent
	}

	var n struct {
		EventType        string `json:"eventType"`
		NotificationType string `json:"notificationType"`
		Mail             struct {
			MessageID   string              `json:"messageId"`
			Destination []string            `json:"destination"`
			Tags        map[string][]string `json:"tags"`
		} `json:"mail"`
		Bounce *struct {
			BounceType        string `json:"bounceType"`
			BouncedRecipients []struct {
				EmailAddress   string `json:"emailAddress"`
				Status         string `json:"status"`
				DiagnosticCode string `json:"diagnosticCode"`
			} `json:"bouncedRecipients"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"bounce"`
		Complaint *struct {
			ComplaintFeedbackType string `json:"complaintFeedbackType"`
			ComplainedRecipients  []struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"complainedRecipients"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"complaint"`
		Delivery *struct {
			Recipients []string  `json:"recipients"`
			Timestamp  time.Time `json:"timestamp"`
		} `json:"delivery"`
		Open *struct {
			UserAgent string    `json:"userAgent"`
			IPAddress string    `json:"ipAddress"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"open"`
		Click *struct {
			Link      string    `json:"link"`
			UserAgent string    `json:"userAgent"`
			IPAddress string    `json:"ipAddress"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"click"`
		Reject *struct {
			Reason string `json:"reason"`
		} `json:"reject"`
		Failure *struct {
			ErrorMessage string `json:"errorMessage"`
		} `json:"failure"`
		DeliveryDelay *struct {
			DelayType         string `json:"delayType"`
			DelayedRecipients []struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"delayedRecipients"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"deliveryDelay"`
	}
	if err := json.Unmarshal([]byte(envelope.Message), &n); err != nil {
		return nil, fmt.Errorf("ses webhook: invalid event message: %w", err)
	}

	eventType := n.EventType
	if eventType == "" {
		eventType = n.NotificationType
	}

	meta := make(map[string]string)
	for name, values := range n.Mail.Tags {
		if strings.HasPrefix(name, "ses:") || len(values) == 0 {
			continue
		}
		meta[name] = values[0]
	}

	normalized := &NormalizedEvent{
		Type:       eventType,
		MessageID:  n.Mail.MessageID,
		OccurredAt: time.Now(),
		Metadata:   meta,
	}
	if len(n.Mail.Destination) > 0 {
		normalized.Recipient = n.Mail.Destination[0]
	}

	switch eventType {
	case "Send":
		return nil, ErrNonEvent
	case "Delivery":
		normalized.Type = EventDelivered
		if n.Delivery != nil {
			if len(n.Delivery.Recipients) > 0 {
				normalized.Recipient = n.Delivery.Recipients[0]
			}
			if !n.Delivery.Timestamp.IsZero() {
				normalized.OccurredAt = n.Delivery.Timestamp
			}
		}
	case "Bounce":
		normalized.Type = EventBounced
		if n.Bounce != nil {
			normalized.BouncePermanent = strings.EqualFold(n.Bounce.BounceType, "permanent")
			if len(n.Bounce.BouncedRecipients) > 0 {
				r := n.Bounce.BouncedRecipients[0]
				normalized.Recipient = r.EmailAddress
				normalized.BounceCode = r.Status
				normalized.BounceMessage = r.DiagnosticCode
			}
			if !n.Bounce.Timestamp.IsZero() {
				normalized.OccurredAt = n.Bounce.Timestamp
			}
		}
	case "Complaint":
		normalized.Type = EventComplained
		if n.Complaint != nil {
			normalized.FeedbackType = n.Complaint.ComplaintFeedbackType
			if len(n.Complaint.ComplainedRecipients) > 0 {
				normalized.Recipient = n.Complaint.ComplainedRecipients[0].EmailAddress
			}
			if !n.Complaint.Timestamp.IsZero() {
				normalized.OccurredAt = n.Complaint.Timestamp
			}
		}
	case "Open":
		normalized.Type = EventOpened
		if n.Open != nil {
			normalized.UserAgent = n.Open.UserAgent
			normalized.IPAddress = n.Open.IPAddress
			if !n.Open.Timestamp.IsZero() {
				normalized.OccurredAt = n.Open.Timestamp
			}
		}
	case "Click":
		normalized.Type = EventClicked
		if n.Click != nil {
			normalized.URL = n.Click.Link
			normalized.UserAgent = n.Click.UserAgent
			normalized.IPAddress = n.Click.IPAddress
			if !n.Click.Timestamp.IsZero() {
				normalized.OccurredAt = n.Click.Timestamp
			}
		}
	case "Reject":
		normalized.Type = EventFailed
		if n.Reject != nil {
			normalized.Reason = n.Reject.Reason
		}
	case "Rendering Failure":
		normalized.Type = EventFailed
		if n.Failure != nil {
			normalized.Reason = n.Failure.ErrorMessage
		}
	case "DeliveryDelay":
		normalized.Type = EventBounced
		normalized.BouncePermanent = false
		if n.DeliveryDelay != nil {
			normalized.BounceMessage = n.DeliveryDelay.DelayType
			if len(n.DeliveryDelay.DelayedRecipients) > 0 {
				normalized.Recipient = n.DeliveryDelay.DelayedRecipients[0].EmailAddress
			}
			if !n.DeliveryDelay.Timestamp.IsZero() {
				normalized.OccurredAt = n.DeliveryDelay.Timestamp
			}
		}
	case "Subscription":
		normalized.Type = EventUnsubscribed
	}

	return normalized, nil
}
