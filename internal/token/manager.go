package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCredentialUnavailable means no prior token exists for the owner and
	// no bootstrap token was supplied; re-authorization is required.
	ErrCredentialUnavailable = errors.New("credential unavailable: re-authorization required")

	// ErrCredentialInvalid means the provider rejected a refresh; the
	// credential is terminally dead until re-authorization out of band.
	ErrCredentialInvalid = errors.New("credential invalid: provider rejected refresh")
)

// IdentityProvider is the external OAuth collaborator used to refresh
// credentials.
type IdentityProvider interface {
	ExchangeForLongLivedToken(ctx context.Context, shortToken string) (string, error)
	MintChannelToken(ctx context.Context, channelID, ownerToken string) (string, error)
}

// Manager guarantees that any credential it hands out is within policy age.
// It is the only writer of owner and channel credential records.
type Manager struct {
	store    storage.CredentialStore
	provider IdentityProvider
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

func NewManager(store storage.CredentialStore, provider IdentityProvider, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// OwnerToken returns a fresh owner-level token, exchanging the stored token
// for a long-lived one when the stored one is missing or past policy age.
// Concurrent callers for the same owner share one refresh round-trip.
func (m *Manager) OwnerToken(ctx context.Context, ownerID string) (string, error) {
	owner, err := m.store.GetOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("owner %s: %w", ownerID, ErrCredentialUnavailable)
	}
	if err != nil {
		return "", fmt.Errorf("loading owner %s: %w", ownerID, err)
	}
	if owner.UserToken == "" {
		return "", fmt.Errorf("owner %s: %w", ownerID, ErrCredentialUnavailable)
	}

	if !IsExpired(owner.TokenRefreshedAt, KindOwner, m.now()) {
		return owner.UserToken, nil
	}

	tok, err, _ := m.group.Do("owner:"+ownerID, func() (interface{}, error) {
		return m.refreshOwner(ctx, ownerID)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

func (m *Manager) refreshOwner(ctx context.Context, ownerID string) (string, error) {
	// Re-read inside the flight: a concurrent caller may have refreshed
	// between the staleness check and joining the group.
	owner, err := m.store.GetOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("owner %s: %w", ownerID, ErrCredentialUnavailable)
	}
	if err != nil {
		return "", fmt.Errorf("loading owner %s: %w", ownerID, err)
	}
	if !IsExpired(owner.TokenRefreshedAt, KindOwner, m.now()) {
		return owner.UserToken, nil
	}

	fresh, err := m.provider.ExchangeForLongLivedToken(ctx, owner.UserToken)
	if err != nil {
		if errors.Is(err, ErrCredentialInvalid) {
			m.logger.Error("Owner token rejected by provider",
				zap.String("owner_id", ownerID))
			return "", fmt.Errorf("owner %s: %w", ownerID, ErrCredentialInvalid)
		}
		return "", fmt.Errorf("exchanging owner token for %s: %w", ownerID, err)
	}

	refreshedAt := m.now()
	if err := m.store.PutOwnerToken(ctx, ownerID, fresh, refreshedAt); err != nil {
		return "", fmt.Errorf("persisting owner token for %s: %w", ownerID, err)
	}

	m.logger.Info("Owner token refreshed", zap.String("owner_id", ownerID))
	return fresh, nil
}

// ChannelToken returns a fresh channel-scoped token for the tenant's page,
// minting a new one from a fresh owner token when the stored credential is
// missing or past policy age. ownerID identifies the owner whose token the
// channel credential derives from.
func (m *Manager) ChannelToken(ctx context.Context, tenantID, channelID, ownerID string) (string, error) {
	cred, err := m.store.GetChannelCredential(ctx, tenantID, channelID)
	if err == nil && !IsExpired(cred.RefreshedAt, KindChannel, m.now()) {
		return cred.Token, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("loading channel credential %s/%s: %w", tenantID, channelID, err)
	}

	tok, err, _ := m.group.Do("channel:"+tenantID+":"+channelID, func() (interface{}, error) {
		return m.refreshChannel(ctx, tenantID, channelID, ownerID)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

func (m *Manager) refreshChannel(ctx context.Context, tenantID, channelID, ownerID string) (string, error) {
	cred, err := m.store.GetChannelCredential(ctx, tenantID, channelID)
	if err == nil && !IsExpired(cred.RefreshedAt, KindChannel, m.now()) {
		return cred.Token, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("loading channel credential %s/%s: %w", tenantID, channelID, err)
	}

	// Channel freshness depends on owner freshness, never the reverse.
	ownerToken, err := m.OwnerToken(ctx, ownerID)
	if err != nil {
		return "", err
	}

	fresh, err := m.provider.MintChannelToken(ctx, channelID, ownerToken)
	if err != nil {
		if errors.Is(err, ErrCredentialInvalid) {
			m.logger.Error("Channel token mint rejected by provider",
				zap.String("tenant_id", tenantID),
				zap.String("channel_id", channelID))
			return "", fmt.Errorf("channel %s/%s: %w", tenantID, channelID, ErrCredentialInvalid)
		}
		return "", fmt.Errorf("minting channel token for %s/%s: %w", tenantID, channelID, err)
	}

	if err := m.store.PutChannelCredential(ctx, &models.ChannelCredential{
		TenantID:    tenantID,
		ChannelID:   channelID,
		Token:       fresh,
		RefreshedAt: m.now(),
		DerivedFrom: ownerID,
	}); err != nil {
		return "", fmt.Errorf("persisting channel credential for %s/%s: %w", tenantID, channelID, err)
	}

	m.logger.Info("Channel token refreshed",
		zap.String("tenant_id", tenantID),
		zap.String("channel_id", channelID))
	return fresh, nil
}
