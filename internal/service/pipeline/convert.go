package pipeline

import (
	"fmt"
	"strings"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/provider"
)

// extractLeadID resolves the lead a webhook event belongs to. Precedence:
// a "lead-{id}" message tag, then the "lead_id" metadata key, then the
// legacy "leadId" key. An event with none of them is a tagging defect in
// the sender and cannot be attributed.
func extractLeadID(ev *provider.NormalizedEvent) (string, error) {
	for _, tag := range ev.Tags {
		if id := strings.TrimPrefix(tag, "lead-"); id != tag && id != "" {
			return id, nil
		}
	}
	if id := ev.Metadata["lead_id"]; id != "" {
		return id, nil
	}
	if id := ev.Metadata["leadId"]; id != "" {
		return id, nil
	}
	return "", fmt.Errorf("event %s for %s carries no lead attribution (no lead- tag or lead_id metadata)",
		ev.Type, ev.MessageID)
}

// extractCampaignID resolves the optional campaign attribution.
func extractCampaignID(ev *provider.NormalizedEvent) string {
	for _, tag := range ev.Tags {
		if id := strings.TrimPrefix(tag, "campaign-"); id != tag && id != "" {
			return id
		}
	}
	if id := ev.Metadata["campaign_id"]; id != "" {
		return id
	}
	return ev.Metadata["campaignId"]
}

// toDomainEvent converts a normalized provider event into its typed union
// member. Unknown provider types are a hard error: the union is closed and
// silently coercing would hide provider contract drift.
func (s *Service) toDomainEvent(ev *provider.NormalizedEvent, env domain.Envelope) (domain.EmailEvent, error) {
	switch ev.Type {
	case provider.EventDelivered:
		return domain.DeliveredEvent{Envelope: env}, nil
	case provider.EventOpened:
		return domain.OpenedEvent{Envelope: env, UserAgent: ev.UserAgent, IPAddress: ev.IPAddress}, nil
	case provider.EventClicked:
		return domain.ClickedEvent{Envelope: env, URL: ev.URL}, nil
	case provider.EventBounced:
		return domain.BouncedEvent{
			Envelope:  env,
			Permanent: ev.BouncePermanent,
			Code:      ev.BounceCode,
			Message:   ev.BounceMessage,
		}, nil
	case provider.EventComplained:
		return domain.ComplainedEvent{Envelope: env, FeedbackType: ev.FeedbackType}, nil
	case provider.EventUnsubscribed:
		return domain.UnsubscribedEvent{Envelope: env}, nil
	case provider.EventFailed:
		return domain.FailedEvent{Envelope: env, Reason: ev.Reason}, nil
	case provider.EventReplied:
		return domain.RepliedEvent{
			Envelope:      env,
			Subject:       ev.Subject,
			Snippet:       ev.Snippet,
			BookingIntent: matchesBookingIntent(s.cfg.BookingKeywords, ev.Subject, ev.Snippet),
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q from provider", ev.Type)
	}
}

// matchesBookingIntent reports whether a reply looks like a meeting request.
func matchesBookingIntent(keywords []string, subject, snippet string) bool {
	text := strings.ToLower(subject + " " + snippet)
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
