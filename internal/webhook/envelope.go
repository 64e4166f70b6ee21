package webhook

// Raw provider envelope: a batch of entries, each carrying zero or more
// messaging sub-events. Field names follow the Messenger webhook payload.

type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string         `json:"id"`
	Time      int64          `json:"time"`
	Messaging []RawMessaging `json:"messaging"`
}

type RawMessaging struct {
	Sender    Principal   `json:"sender"`
	Recipient Principal   `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *RawMessage `json:"message,omitempty"`
	Delivery  *RawReceipt `json:"delivery,omitempty"`
	Read      *RawReceipt `json:"read,omitempty"`
}

type Principal struct {
	ID string `json:"id"`
}

type RawMessage struct {
	MID         string          `json:"mid"`
	Text        string          `json:"text,omitempty"`
	IsEcho      bool            `json:"is_echo,omitempty"`
	IsDeleted   bool            `json:"is_deleted,omitempty"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
}

type RawAttachment struct {
	Type string `json:"type"`
}

type RawReceipt struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
}
