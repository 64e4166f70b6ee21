package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
	"github.com/orivon/pagerelay/internal/token"
	"go.uber.org/zap"
)

type stubProvider struct{}

func (stubProvider) ExchangeForLongLivedToken(ctx context.Context, shortToken string) (string, error) {
	return "long-" + shortToken, nil
}

func (stubProvider) MintChannelToken(ctx context.Context, channelID, ownerToken string) (string, error) {
	return "page-" + channelID, nil
}

type fakeGenerator struct {
	calls int32
	reply string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, t *models.Tenant, messageText string) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	return g.reply, g.err
}

type fakeSender struct {
	calls int32
	err   error
	last  struct {
		channelID   string
		recipientID string
		text        string
	}
}

func (s *fakeSender) Send(ctx context.Context, channelID, accessToken, recipientID, text string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	s.last.channelID = channelID
	s.last.recipientID = recipientID
	s.last.text = text
	if s.err != nil {
		return "", s.err
	}
	return "sent-mid", nil
}

type fixture struct {
	proc   *Processor
	store  *storage.MemoryStorage
	gen    *fakeGenerator
	sender *fakeSender
	tenant *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStorage()
	ctx := context.Background()
	ten := &models.Tenant{ID: "tenant-1", Name: "Acme Flowers", OwnerID: "owner-1", PageID: "page-1"}
	store.PutOwnerToken(ctx, "owner-1", "tok-1", time.Now().Add(-time.Hour))
	store.CreateTenant(ctx, ten)
	store.PutChannelCredential(ctx, &models.ChannelCredential{
		TenantID:    "tenant-1",
		ChannelID:   "page-1",
		Token:       "page-token",
		RefreshedAt: time.Now().Add(-time.Minute),
	})

	logger := zap.NewNop()
	gen := &fakeGenerator{reply: "We open at 9am."}
	sender := &fakeSender{}
	tokens := token.NewManager(store, stubProvider{}, logger)
	return &fixture{
		proc:   New(store, tokens, sender, gen, logger),
		store:  store,
		gen:    gen,
		sender: sender,
		tenant: ten,
	}
}

func textEvent(mid, senderID, text string) models.Event {
	return models.Event{
		Kind:              models.EventText,
		PageID:            "page-1",
		ProviderMessageID: mid,
		SenderID:          senderID,
		RecipientID:       "page-1",
		Text:              text,
		Timestamp:         time.Now(),
	}
}

func TestInboundTextFullFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	err := fx.proc.HandleEvent(ctx, fx.tenant, textEvent("m1", "user-1", "my name is Jane Doe"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	inbound, err := fx.store.MessageExists(ctx, "tenant-1", "m1", models.DirectionReceived)
	if err != nil || !inbound {
		t.Fatalf("inbound not logged (exists=%v err=%v)", inbound, err)
	}

	p, err := fx.store.GetParticipant(ctx, "tenant-1", "user-1")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p.Name != "Jane Doe" {
		t.Fatalf("expected name Jane Doe, got %q", p.Name)
	}

	if n := atomic.LoadInt32(&fx.gen.calls); n != 1 {
		t.Fatalf("expected one generate call, got %d", n)
	}
	if n := atomic.LoadInt32(&fx.sender.calls); n != 1 {
		t.Fatalf("expected one send, got %d", n)
	}
	if fx.sender.last.recipientID != "user-1" {
		t.Fatalf("reply sent to %q, want user-1", fx.sender.last.recipientID)
	}

	outbound, err := fx.store.MessageExists(ctx, "tenant-1", "sent-mid", models.DirectionSent)
	if err != nil || !outbound {
		t.Fatalf("outbound not logged (exists=%v err=%v)", outbound, err)
	}
}

func TestNoReplyMeansNoSend(t *testing.T) {
	fx := newFixture(t)
	fx.gen.reply = ""

	err := fx.proc.HandleEvent(context.Background(), fx.tenant, textEvent("m1", "user-1", "ok thanks"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if n := atomic.LoadInt32(&fx.sender.calls); n != 0 {
		t.Fatalf("expected no send without a reply, got %d", n)
	}
}

func TestBusinessSenderLoggedWithoutReply(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Sender id equals the tenant's own page id.
	err := fx.proc.HandleEvent(ctx, fx.tenant, textEvent("m1", "page-1", "closing early today"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	exists, err := fx.store.MessageExists(ctx, "tenant-1", "m1", models.DirectionReceived)
	if err != nil || !exists {
		t.Fatalf("business message should still be logged (exists=%v err=%v)", exists, err)
	}

	p, err := fx.store.GetParticipant(ctx, "tenant-1", "page-1")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p.Role != models.RoleBusiness {
		t.Fatalf("expected business role, got %s", p.Role)
	}

	if n := atomic.LoadInt32(&fx.gen.calls); n != 0 {
		t.Fatalf("business message must not trigger reply generation, got %d", n)
	}
}

func TestDeleteRemovesMatchingMessage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.proc.HandleEvent(ctx, fx.tenant, textEvent("m1", "user-1", "please delete me")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	del := models.Event{
		Kind:              models.EventDelete,
		PageID:            "page-1",
		ProviderMessageID: "m1",
		SenderID:          "user-1",
		RecipientID:       "page-1",
	}
	if err := fx.proc.HandleEvent(ctx, fx.tenant, del); err != nil {
		t.Fatalf("delete event: %v", err)
	}

	exists, err := fx.store.MessageExists(ctx, "tenant-1", "m1", models.DirectionReceived)
	if err != nil {
		t.Fatalf("MessageExists: %v", err)
	}
	if exists {
		t.Fatal("message should have been removed")
	}
}

func TestDeleteNoopWhenNoRow(t *testing.T) {
	fx := newFixture(t)

	del := models.Event{
		Kind:              models.EventDelete,
		PageID:            "page-1",
		ProviderMessageID: "never-existed",
	}
	if err := fx.proc.HandleEvent(context.Background(), fx.tenant, del); err != nil {
		t.Fatalf("delete of missing row should be a no-op, got %v", err)
	}
}

func TestEchoLoggedAsOutboundWithoutReply(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	echo := models.Event{
		Kind:              models.EventEcho,
		PageID:            "page-1",
		ProviderMessageID: "m-echo",
		SenderID:          "page-1",
		RecipientID:       "user-1",
		Text:              "we already sent this",
		Timestamp:         time.Now(),
	}
	if err := fx.proc.HandleEvent(ctx, fx.tenant, echo); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	exists, err := fx.store.MessageExists(ctx, "tenant-1", "m-echo", models.DirectionSent)
	if err != nil || !exists {
		t.Fatalf("echo should be audit-logged as sent (exists=%v err=%v)", exists, err)
	}
	if n := atomic.LoadInt32(&fx.gen.calls); n != 0 {
		t.Fatalf("echo must never trigger a reply, got %d", n)
	}
}

func TestReceiptsAcknowledgedNotLogged(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for _, kind := range []models.Classification{models.EventRead, models.EventDelivery} {
		ev := models.Event{Kind: kind, PageID: "page-1", SenderID: "user-1", RecipientID: "page-1"}
		if err := fx.proc.HandleEvent(ctx, fx.tenant, ev); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
	if n := atomic.LoadInt32(&fx.gen.calls); n != 0 {
		t.Fatalf("receipts must not reach the generator, got %d", n)
	}
}

func TestSendFailureKeepsInboundLog(t *testing.T) {
	fx := newFixture(t)
	fx.sender.err = errors.New("provider unavailable")
	ctx := context.Background()

	err := fx.proc.HandleEvent(ctx, fx.tenant, textEvent("m1", "user-1", "hello"))
	if err == nil {
		t.Fatal("expected send failure to surface")
	}

	exists, lookupErr := fx.store.MessageExists(ctx, "tenant-1", "m1", models.DirectionReceived)
	if lookupErr != nil || !exists {
		t.Fatalf("send failure must not roll back the inbound log (exists=%v err=%v)", exists, lookupErr)
	}
}

func TestGenerateFailureSurfaced(t *testing.T) {
	fx := newFixture(t)
	fx.gen.err = errors.New("model timeout")

	err := fx.proc.HandleEvent(context.Background(), fx.tenant, textEvent("m1", "user-1", "hello"))
	if err == nil {
		t.Fatal("expected generation failure to surface")
	}
	if n := atomic.LoadInt32(&fx.sender.calls); n != 0 {
		t.Fatalf("failed generation must not send, got %d", n)
	}
}
