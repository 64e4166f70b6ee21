package storage

import (
	"context"
	"errors"
	"time"

	"github.com/orivon/pagerelay/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByPageID(ctx context.Context, pageID string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

// CredentialStore persists owner and channel credentials. Each Put replaces
// token and refresh timestamp together; a reader never observes one without
// the other.
type CredentialStore interface {
	GetOwner(ctx context.Context, ownerID string) (*models.Owner, error)
	PutOwnerToken(ctx context.Context, ownerID, token string, refreshedAt time.Time) error
	GetChannelCredential(ctx context.Context, tenantID, channelID string) (*models.ChannelCredential, error)
	PutChannelCredential(ctx context.Context, cred *models.ChannelCredential) error
	ListOwners(ctx context.Context) ([]*models.Owner, error)
	ListChannelCredentials(ctx context.Context) ([]*models.ChannelCredential, error)
}

type MessageStore interface {
	// SaveMessage inserts the message, ignoring it silently when a row with
	// the same (tenant, provider message id, direction) already exists.
	SaveMessage(ctx context.Context, msg *models.LoggedMessage) error
	MessageExists(ctx context.Context, tenantID, providerMessageID string, direction models.Direction) (bool, error)
	// DeleteMessage removes the logged message with the given provider id,
	// reporting whether a row was removed.
	DeleteMessage(ctx context.Context, tenantID, providerMessageID string) (bool, error)
}

type ParticipantStore interface {
	GetParticipant(ctx context.Context, tenantID, platformUserID string) (*models.Participant, error)
	UpsertParticipant(ctx context.Context, p *models.Participant) error
}

type Storage interface {
	TenantStore
	CredentialStore
	MessageStore
	ParticipantStore
	Close() error
}
