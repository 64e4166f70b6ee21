// Package processor holds the per-event business logic: message logging,
// participant upkeep, reply generation, and outbound delivery.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
	"github.com/orivon/pagerelay/internal/token"
	"go.uber.org/zap"
)

// ChannelSender delivers an outbound text message on a channel and returns
// the provider message id.
type ChannelSender interface {
	Send(ctx context.Context, channelID, accessToken, recipientID, text string) (string, error)
}

// ReplyGenerator produces a reply for an inbound message, or "" when no
// reply is warranted.
type ReplyGenerator interface {
	Generate(ctx context.Context, t *models.Tenant, messageText string) (string, error)
}

// Processor is the sole writer of messages and participants. All of its
// writes are idempotent per (tenant, provider message id), so concurrent
// redelivery needs no locking here.
type Processor struct {
	store   storage.Storage
	tokens  *token.Manager
	sender  ChannelSender
	replies ReplyGenerator
	logger  *zap.Logger
}

func New(store storage.Storage, tokens *token.Manager, sender ChannelSender, replies ReplyGenerator, logger *zap.Logger) *Processor {
	return &Processor{
		store:   store,
		tokens:  tokens,
		sender:  sender,
		replies: replies,
		logger:  logger,
	}
}

func (p *Processor) HandleEvent(ctx context.Context, t *models.Tenant, ev models.Event) error {
	switch ev.Kind {
	case models.EventDelete:
		return p.handleDelete(ctx, t, ev)
	case models.EventEcho:
		return p.handleEcho(ctx, t, ev)
	case models.EventRead, models.EventDelivery:
		// Acknowledged, not logged as conversational content.
		p.logger.Debug("Receipt acknowledged",
			zap.String("tenant_id", t.ID),
			zap.String("kind", string(ev.Kind)))
		return nil
	case models.EventText, models.EventAttachment:
		return p.handleMessage(ctx, t, ev)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// handleDelete removes the previously logged message with the same provider
// id. A miss is a no-op, not an error.
func (p *Processor) handleDelete(ctx context.Context, t *models.Tenant, ev models.Event) error {
	removed, err := p.store.DeleteMessage(ctx, t.ID, ev.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", ev.ProviderMessageID, err)
	}
	p.logger.Info("Message delete processed",
		zap.String("tenant_id", t.ID),
		zap.String("provider_message_id", ev.ProviderMessageID),
		zap.Bool("removed", removed))
	return nil
}

// handleEcho audit-logs the platform's copy of a message the business
// already sent. No reply is ever generated for an echo.
func (p *Processor) handleEcho(ctx context.Context, t *models.Tenant, ev models.Event) error {
	msg := &models.LoggedMessage{
		ID:                uuid.New().String(),
		TenantID:          t.ID,
		ProviderMessageID: ev.ProviderMessageID,
		SenderID:          ev.SenderID,
		RecipientID:       ev.RecipientID,
		Direction:         models.DirectionSent,
		Classification:    models.EventEcho,
		Text:              ev.Text,
		Timestamp:         ev.Timestamp,
		CreatedAt:         time.Now(),
	}
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("logging echo %s: %w", ev.ProviderMessageID, err)
	}
	return nil
}

func (p *Processor) handleMessage(ctx context.Context, t *models.Tenant, ev models.Event) error {
	role := models.RoleCustomer
	if ev.SenderID == t.PageID {
		role = models.RoleBusiness
	}

	participant := &models.Participant{
		PlatformUserID: ev.SenderID,
		TenantID:       t.ID,
		Role:           role,
	}
	if err := p.store.UpsertParticipant(ctx, participant); err != nil {
		p.logger.Error("Failed to upsert participant",
			zap.Error(err),
			zap.String("tenant_id", t.ID),
			zap.String("sender_id", ev.SenderID))
	}

	inbound := &models.LoggedMessage{
		ID:                uuid.New().String(),
		TenantID:          t.ID,
		ProviderMessageID: ev.ProviderMessageID,
		SenderID:          ev.SenderID,
		RecipientID:       ev.RecipientID,
		Direction:         models.DirectionReceived,
		Classification:    ev.Kind,
		Text:              ev.Text,
		AttachmentType:    ev.AttachmentType,
		Timestamp:         ev.Timestamp,
		CreatedAt:         time.Now(),
	}
	if err := p.store.SaveMessage(ctx, inbound); err != nil {
		return fmt.Errorf("logging inbound message %s: %w", ev.ProviderMessageID, err)
	}

	// The business's own non-echo messages are logged but never answered.
	if role == models.RoleBusiness {
		return nil
	}

	if fields := ExtractProfileFields(ev.Text); !fields.Empty() {
		participant.Name = fields.Name
		participant.Phone = fields.Phone
		participant.Email = fields.Email
		participant.Location = fields.Location
		if err := p.store.UpsertParticipant(ctx, participant); err != nil {
			p.logger.Error("Failed to update participant profile",
				zap.Error(err),
				zap.String("tenant_id", t.ID),
				zap.String("sender_id", ev.SenderID))
		}
	}

	reply, err := p.replies.Generate(ctx, t, ev.Text)
	if err != nil {
		return fmt.Errorf("generating reply for %s: %w", ev.ProviderMessageID, err)
	}
	if reply == "" {
		return nil
	}

	// Outbound failures are reported but never roll back the inbound log.
	return p.sendReply(ctx, t, ev.SenderID, reply)
}

func (p *Processor) sendReply(ctx context.Context, t *models.Tenant, recipientID, text string) error {
	accessToken, err := p.tokens.ChannelToken(ctx, t.ID, t.PageID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("obtaining channel token: %w", err)
	}

	providerID, err := p.sender.Send(ctx, t.PageID, accessToken, recipientID, text)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	if providerID == "" {
		providerID = "out-" + uuid.New().String()
	}

	outbound := &models.LoggedMessage{
		ID:                uuid.New().String(),
		TenantID:          t.ID,
		ProviderMessageID: providerID,
		SenderID:          t.PageID,
		RecipientID:       recipientID,
		Direction:         models.DirectionSent,
		Classification:    models.EventText,
		Text:              text,
		Timestamp:         time.Now(),
		CreatedAt:         time.Now(),
	}
	if err := p.store.SaveMessage(ctx, outbound); err != nil {
		return fmt.Errorf("logging outbound message %s: %w", providerID, err)
	}

	p.logger.Info("Reply sent",
		zap.String("tenant_id", t.ID),
		zap.String("recipient_id", recipientID),
		zap.String("provider_message_id", providerID))
	return nil
}
