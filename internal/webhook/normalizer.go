package webhook

import (
	"time"

	"github.com/orivon/pagerelay/internal/models"
)

// Normalize flattens a provider envelope into canonical events, preserving
// provider delivery order. Classification precedence when multiple flags are
// present on one raw sub-event: delete > echo > read/delivery receipt >
// text/attachment. Deletion and echo are control signals and must win over
// normal message handling.
func Normalize(env *Envelope) []models.Event {
	var events []models.Event
	for _, entry := range env.Entry {
		for _, raw := range entry.Messaging {
			if ev, ok := classify(entry.ID, raw); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func classify(pageID string, raw RawMessaging) (models.Event, bool) {
	ev := models.Event{
		PageID:      pageID,
		SenderID:    raw.Sender.ID,
		RecipientID: raw.Recipient.ID,
		Timestamp:   time.UnixMilli(raw.Timestamp),
	}

	switch {
	case raw.Message != nil && raw.Message.IsDeleted:
		ev.Kind = models.EventDelete
		ev.ProviderMessageID = raw.Message.MID
	case raw.Message != nil && raw.Message.IsEcho:
		ev.Kind = models.EventEcho
		ev.ProviderMessageID = raw.Message.MID
		ev.Text = raw.Message.Text
	case raw.Read != nil:
		ev.Kind = models.EventRead
	case raw.Delivery != nil:
		ev.Kind = models.EventDelivery
		if len(raw.Delivery.MIDs) > 0 {
			ev.ProviderMessageID = raw.Delivery.MIDs[0]
		}
	case raw.Message != nil && len(raw.Message.Attachments) > 0:
		ev.Kind = models.EventAttachment
		ev.ProviderMessageID = raw.Message.MID
		ev.Text = raw.Message.Text
		ev.AttachmentType = raw.Message.Attachments[0].Type
	case raw.Message != nil:
		ev.Kind = models.EventText
		ev.ProviderMessageID = raw.Message.MID
		ev.Text = raw.Message.Text
	default:
		// Sub-event carries nothing we route (reactions, postbacks, ...).
		return models.Event{}, false
	}

	return ev, true
}
