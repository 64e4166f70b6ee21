package storage

import (
	"context"
	"sync"
	"time"

	"github.com/orivon/pagerelay/internal/models"
)

// MemoryStorage is an in-process Storage used for tests and local runs.
type MemoryStorage struct {
	mu           sync.RWMutex
	tenants      map[string]*models.Tenant
	owners       map[string]*models.Owner
	creds        map[string]*models.ChannelCredential
	messages     map[string]*models.LoggedMessage
	participants map[string]*models.Participant
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tenants:      make(map[string]*models.Tenant),
		owners:       make(map[string]*models.Owner),
		creds:        make(map[string]*models.ChannelCredential),
		messages:     make(map[string]*models.LoggedMessage),
		participants: make(map[string]*models.Participant),
	}
}

func credKey(tenantID, channelID string) string {
	return tenantID + "/" + channelID
}

func msgKey(tenantID, providerID string, d models.Direction) string {
	return tenantID + "/" + providerID + "/" + string(d)
}

func participantKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (s *MemoryStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tenant, exists := s.tenants[id]; exists {
		copied := *tenant
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetTenantByPageID(ctx context.Context, pageID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tenant := range s.tenants {
		if tenant.PageID == pageID {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	copied := *tenant
	s.tenants[tenant.ID] = &copied
	return nil
}

func (s *MemoryStorage) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*models.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		copied := *tenant
		tenants = append(tenants, &copied)
	}
	return tenants, nil
}

func (s *MemoryStorage) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if owner, exists := s.owners[ownerID]; exists {
		copied := *owner
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) PutOwnerToken(ctx context.Context, ownerID, token string, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owners[ownerID] = &models.Owner{
		ID:               ownerID,
		UserToken:        token,
		TokenRefreshedAt: refreshedAt,
	}
	return nil
}

func (s *MemoryStorage) GetChannelCredential(ctx context.Context, tenantID, channelID string) (*models.ChannelCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cred, exists := s.creds[credKey(tenantID, channelID)]; exists {
		copied := *cred
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) PutChannelCredential(ctx context.Context, cred *models.ChannelCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.creds[credKey(cred.TenantID, cred.ChannelID)] = &copied
	return nil
}

func (s *MemoryStorage) ListOwners(ctx context.Context) ([]*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]*models.Owner, 0, len(s.owners))
	for _, owner := range s.owners {
		copied := *owner
		owners = append(owners, &copied)
	}
	return owners, nil
}

func (s *MemoryStorage) ListChannelCredentials(ctx context.Context) ([]*models.ChannelCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]*models.ChannelCredential, 0, len(s.creds))
	for _, cred := range s.creds {
		copied := *cred
		creds = append(creds, &copied)
	}
	return creds, nil
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.LoggedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msgKey(msg.TenantID, msg.ProviderMessageID, msg.Direction)
	if _, exists := s.messages[key]; exists {
		return nil
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	copied := *msg
	s.messages[key] = &copied
	return nil
}

func (s *MemoryStorage) MessageExists(ctx context.Context, tenantID, providerMessageID string, direction models.Direction) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.messages[msgKey(tenantID, providerMessageID, direction)]
	return exists, nil
}

func (s *MemoryStorage) DeleteMessage(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for _, direction := range []models.Direction{models.DirectionReceived, models.DirectionSent} {
		key := msgKey(tenantID, providerMessageID, direction)
		if _, exists := s.messages[key]; exists {
			delete(s.messages, key)
			removed = true
		}
	}
	return removed, nil
}

func (s *MemoryStorage) GetParticipant(ctx context.Context, tenantID, platformUserID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.participants[participantKey(tenantID, platformUserID)]; exists {
		copied := *p
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participantKey(p.TenantID, p.PlatformUserID)
	existing, exists := s.participants[key]
	if !exists {
		copied := *p
		copied.UpdatedAt = time.Now()
		s.participants[key] = &copied
		return nil
	}

	existing.Role = p.Role
	if p.Name != "" {
		existing.Name = p.Name
	}
	if p.Phone != "" {
		existing.Phone = p.Phone
	}
	if p.Email != "" {
		existing.Email = p.Email
	}
	if p.Location != "" {
		existing.Location = p.Location
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
