package models

import "time"

// Classification tags a canonical event with what the raw sub-event was.
type Classification string

const (
	EventText       Classification = "text"
	EventAttachment Classification = "attachment"
	EventEcho       Classification = "echo"
	EventDelete     Classification = "delete"
	EventRead       Classification = "read"
	EventDelivery   Classification = "delivery"
)

// Event is the canonical representation of one raw provider messaging
// sub-event after normalization. Kind is always one of the Classification
// constants; the remaining fields are populated as the kind allows.
type Event struct {
	Kind              Classification `json:"kind"`
	PageID            string         `json:"page_id"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SenderID          string         `json:"sender_id"`
	RecipientID       string         `json:"recipient_id"`
	Text              string         `json:"text,omitempty"`
	AttachmentType    string         `json:"attachment_type,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// IsMessage reports whether the event carries conversational content that
// participates in message logging and reply generation.
func (e Event) IsMessage() bool {
	return e.Kind == EventText || e.Kind == EventAttachment
}
