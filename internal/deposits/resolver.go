package deposits

import (
	"context"

	"github.com/pamoja-sacco/pamoja-sacco/internal/members"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// RegistryStores resolves per-tenant repositories from the tenant pool
// registry.
type RegistryStores struct {
	registry *tenant.Registry
}

func NewRegistryStores(registry *tenant.Registry) *RegistryStores {
	return &RegistryStores{registry: registry}
}

func (s *RegistryStores) Deposits(ctx context.Context, orgCode string) (Repository, error) {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return nil, err
	}
	return NewRepository(pool), nil
}

func (s *RegistryStores) Members(ctx context.Context, orgCode string) (members.Repository, error) {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return nil, err
	}
	return members.NewRepository(pool), nil
}

func (s *RegistryStores) Audit(ctx context.Context, orgCode string) (shared.AuditSink, error) {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return nil, err
	}
	return shared.NewAuditLogger(pool), nil
}
