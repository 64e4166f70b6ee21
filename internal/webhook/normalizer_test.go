package webhook

import (
	"testing"

	"github.com/orivon/pagerelay/internal/models"
)

func TestNormalizeFlattensEntries(t *testing.T) {
	env := &Envelope{
		Object: "page",
		Entry: []Entry{
			{
				ID: "page-1",
				Messaging: []RawMessaging{
					{
						Sender:    Principal{ID: "user-1"},
						Recipient: Principal{ID: "page-1"},
						Timestamp: 1700000000000,
						Message:   &RawMessage{MID: "m1", Text: "hello"},
					},
					{
						Sender:    Principal{ID: "user-2"},
						Recipient: Principal{ID: "page-1"},
						Message:   &RawMessage{MID: "m2", Text: "hi"},
					},
				},
			},
			{
				ID: "page-2",
				Messaging: []RawMessaging{
					{
						Sender:    Principal{ID: "user-3"},
						Recipient: Principal{ID: "page-2"},
						Message:   &RawMessage{MID: "m3", Text: "hey"},
					},
				},
			},
		},
	}

	events := Normalize(env)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	wantMIDs := []string{"m1", "m2", "m3"}
	for i, want := range wantMIDs {
		if events[i].ProviderMessageID != want {
			t.Fatalf("event %d: expected mid %s, got %s", i, want, events[i].ProviderMessageID)
		}
	}
	if events[2].PageID != "page-2" {
		t.Fatalf("expected entry id carried onto event, got %s", events[2].PageID)
	}
	if events[0].Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("timestamp not preserved: %v", events[0].Timestamp)
	}
}

func TestClassificationPrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  RawMessaging
		want models.Classification
	}{
		{
			name: "plain text",
			raw:  RawMessaging{Message: &RawMessage{MID: "m1", Text: "hi"}},
			want: models.EventText,
		},
		{
			name: "attachment",
			raw:  RawMessaging{Message: &RawMessage{MID: "m1", Attachments: []RawAttachment{{Type: "image"}}}},
			want: models.EventAttachment,
		},
		{
			name: "echo wins over text",
			raw:  RawMessaging{Message: &RawMessage{MID: "m1", Text: "hi", IsEcho: true}},
			want: models.EventEcho,
		},
		{
			name: "delete wins over echo",
			raw:  RawMessaging{Message: &RawMessage{MID: "m1", Text: "hi", IsEcho: true, IsDeleted: true}},
			want: models.EventDelete,
		},
		{
			name: "delete wins over attachment",
			raw:  RawMessaging{Message: &RawMessage{MID: "m1", IsDeleted: true, Attachments: []RawAttachment{{Type: "image"}}}},
			want: models.EventDelete,
		},
		{
			name: "read receipt",
			raw:  RawMessaging{Read: &RawReceipt{Watermark: 1700000000000}},
			want: models.EventRead,
		},
		{
			name: "delivery receipt",
			raw:  RawMessaging{Delivery: &RawReceipt{MIDs: []string{"m1"}, Watermark: 1700000000000}},
			want: models.EventDelivery,
		},
		{
			name: "read wins over plain message",
			raw:  RawMessaging{Read: &RawReceipt{}, Message: &RawMessage{MID: "m1", Text: "hi"}},
			want: models.EventRead,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := classify("page-1", tc.raw)
			if !ok {
				t.Fatal("expected event, got none")
			}
			if ev.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, ev.Kind)
			}
		})
	}
}

func TestClassifyIgnoresEmptySubEvents(t *testing.T) {
	if _, ok := classify("page-1", RawMessaging{Sender: Principal{ID: "u"}}); ok {
		t.Fatal("expected empty sub-event to be skipped")
	}
}
