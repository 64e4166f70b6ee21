package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
)

// ErrTenantNotFound means an inbound event referenced a page no tenant has
// linked; the event cannot be attributed and must be dropped.
var ErrTenantNotFound = errors.New("no tenant linked to platform account")

// Resolver maps an inbound platform account id to its tenant.
type Resolver struct {
	store storage.TenantStore
}

func NewResolver(store storage.TenantStore) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, pageID string) (*models.Tenant, error) {
	tenant, err := r.store.GetTenantByPageID(ctx, pageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("page %s: %w", pageID, ErrTenantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving page %s: %w", pageID, err)
	}
	return tenant, nil
}
