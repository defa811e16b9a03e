package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pamoja-sacco/pamoja-sacco/internal/authz"
	"github.com/pamoja-sacco/pamoja-sacco/internal/deposits"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger"
	"github.com/pamoja-sacco/pamoja-sacco/internal/loans"
	"github.com/pamoja-sacco/pamoja-sacco/internal/observability"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
	"github.com/pamoja-sacco/pamoja-sacco/jobs"
)

// Module permissions guard route groups. Roles bundle these per tenant; the
// authz middleware resolves the acting user's set on each request.
const (
	PermissionLoans    = "loans.manage"
	PermissionDeposits = "deposits.manage"
	PermissionLedger   = "ledger.manage"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Registry        *tenant.Registry
	LoansHandler    *loans.Handler
	DepositsHandler *deposits.Handler
	LedgerHandler   *ledger.Handler
	JobsHandler     *jobs.Handler
	Authz           *authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(TenantMiddleware(params.Registry))
		api.Use(ActorMiddleware())

		api.Group(func(g chi.Router) {
			g.Use(params.guard(PermissionLoans))
			params.LoansHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			g.Use(params.guard(PermissionDeposits))
			params.DepositsHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			g.Use(params.guard(PermissionLedger))
			params.LedgerHandler.MountRoutes(g)
		})
	})

	return r
}

// guard applies the permission check when the authz middleware is
// configured; development setups without role data run open.
func (p RouterParams) guard(permission string) func(http.Handler) http.Handler {
	if p.Authz == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return p.Authz.Require(permission)
}
