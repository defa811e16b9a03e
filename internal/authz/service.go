package authz

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// Service resolves a staff user's effective permissions within one
// organization. Permissions flow through roles only; there are no direct
// user grants.
type Service struct {
	registry *tenant.Registry
	cache    *Cache
	logger   *slog.Logger
}

func NewService(registry *tenant.Registry, cache *Cache, logger *slog.Logger) *Service {
	return &Service{registry: registry, cache: cache, logger: logger}
}

// EffectivePermissions returns the flattened, deduplicated permission codes
// granted to the user through their roles.
func (s *Service) EffectivePermissions(ctx context.Context, orgCode string, userID int64) ([]string, error) {
	return s.cache.Permissions(ctx, orgCode, userID, func(ctx context.Context) ([]string, error) {
		return s.loadPermissions(ctx, orgCode, userID)
	})
}

// Allowed reports whether the user holds the permission.
func (s *Service) Allowed(ctx context.Context, orgCode string, userID int64, permission string) (bool, error) {
	permission = strings.TrimSpace(strings.ToLower(permission))
	if permission == "" {
		return true, nil
	}
	granted, err := s.EffectivePermissions(ctx, orgCode, userID)
	if err != nil {
		return false, err
	}
	for _, p := range granted {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

// AssignRole links a role to a user and invalidates the organization's
// cached permission sets.
func (s *Service) AssignRole(ctx context.Context, orgCode string, userID, roleID int64) error {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return err
	}
	cmd, err := pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		s.invalidate(ctx, orgCode)
	}
	return nil
}

// RevokeRole unlinks a role from a user and invalidates the organization's
// cached permission sets.
func (s *Service) RevokeRole(ctx context.Context, orgCode string, userID, roleID int64) error {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return err
	}
	cmd, err := pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id=$1 AND role_id=$2`, userID, roleID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	s.invalidate(ctx, orgCode)
	return nil
}

func (s *Service) invalidate(ctx context.Context, orgCode string) {
	if err := s.cache.Invalidate(ctx, orgCode); err != nil && s.logger != nil {
		s.logger.Warn("permission cache invalidation failed", slog.String("org", orgCode), slog.Any("error", err))
	}
}

func (s *Service) loadPermissions(ctx context.Context, orgCode string, userID int64) ([]string, error) {
	pool, err := s.registry.Pool(ctx, orgCode)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT DISTINCT p.code
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN user_roles ur ON ur.role_id = rp.role_id
WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		perms = append(perms, strings.ToLower(code))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(perms)
	return perms, nil
}
