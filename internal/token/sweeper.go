package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SweepStore is the slice of storage the sweeper needs: credential listings
// plus tenant lookup to map a channel credential back to its owner.
type SweepStore interface {
	storage.CredentialStore
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// Sweeper proactively refreshes stale credentials on a fixed interval so
// steady-state request handling stays on the no-refresh path. It is started
// once at process initialization and stopped via context cancellation.
type Sweeper struct {
	store    SweepStore
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewSweeper(store SweepStore, manager *Manager, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		manager:  manager,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the sweep loop. It returns immediately; the loop runs
// until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("Credential sweeper started", zap.Duration("interval", s.interval))
}

// Wait blocks until the loop has exited after cancellation.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Credential sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Warn("Credential sweep completed with failures", zap.Error(err))
			}
		}
	}
}

// Sweep refreshes every owner and channel credential past policy age.
// A failure for one credential never aborts the rest; all failures are
// collected into the returned error.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var errs error

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("listing owners: %w", err)
	}
	for _, owner := range owners {
		if !IsExpired(owner.TokenRefreshedAt, KindOwner, s.now()) {
			continue
		}
		if _, err := s.manager.OwnerToken(ctx, owner.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("owner %s: %w", owner.ID, err))
		}
	}

	creds, err := s.store.ListChannelCredentials(ctx)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("listing channel credentials: %w", err))
	}
	for _, cred := range creds {
		if !IsExpired(cred.RefreshedAt, KindChannel, s.now()) {
			continue
		}
		tenant, err := s.store.GetTenant(ctx, cred.TenantID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", cred.TenantID, err))
			continue
		}
		if _, err := s.manager.ChannelToken(ctx, cred.TenantID, cred.ChannelID, tenant.OwnerID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s/%s: %w", cred.TenantID, cred.ChannelID, err))
		}
	}

	return errs
}
