// Package tenant maps organization codes to their isolated data stores.
//
// Each organization owns a separate Postgres database. How those databases
// are provisioned is outside this package; the registry only resolves a
// code to a connection pool. Cross-tenant transactions are impossible by
// construction since no two organizations share a pool.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/db"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
)

// Registry resolves organization codes to connection pools, opening each
// pool lazily on first use.
type Registry struct {
	mu    sync.Mutex
	dsns  map[string]string
	pools map[string]*pgxpool.Pool
	open  func(ctx context.Context, dsn string) (*pgxpool.Pool, error)
}

// NewRegistry builds a registry from a code→DSN map.
func NewRegistry(dsns map[string]string) *Registry {
	return &Registry{
		dsns:  dsns,
		pools: make(map[string]*pgxpool.Pool),
		open:  db.Open,
	}
}

// ParseDSNs parses the TENANT_DSNS environment value, a semicolon separated
// list of code=dsn pairs.
func ParseDSNs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("tenant: malformed dsn entry %q", pair)
		}
		code := strings.TrimSpace(pair[:idx])
		if _, dup := out[code]; dup {
			return nil, fmt.Errorf("tenant: duplicate organization %q", code)
		}
		out[code] = strings.TrimSpace(pair[idx+1:])
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tenant: no organizations configured")
	}
	return out, nil
}

// Pool returns the connection pool for one organization.
func (r *Registry) Pool(ctx context.Context, orgCode string) (*pgxpool.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[orgCode]; ok {
		return pool, nil
	}
	dsn, ok := r.dsns[orgCode]
	if !ok {
		return nil, fmt.Errorf("tenant: organization %q: %w", orgCode, shared.ErrNotFound)
	}
	pool, err := r.open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("tenant: open %q: %w", orgCode, err)
	}
	r.pools[orgCode] = pool
	return pool, nil
}

// Codes returns the configured organization codes in stable order.
func (r *Registry) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.dsns))
	for code := range r.dsns {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Close releases every opened pool.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, pool := range r.pools {
		pool.Close()
		delete(r.pools, code)
	}
}
