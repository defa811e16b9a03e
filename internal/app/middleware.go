package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/pamoja-sacco/pamoja-sacco/internal/observability"
	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/httpx"
	"github.com/pamoja-sacco/pamoja-sacco/internal/shared"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// OrgHeader names the organization an API request operates on. Every tenant
// route requires it.
const OrgHeader = "X-Org-Code"

// ActorHeader carries the authenticated staff user id, injected by the
// identity gateway in front of this service.
const ActorHeader = "X-Actor-ID"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the global middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// TenantMiddleware resolves the organization code from the request header,
// rejects unknown codes and stores the code in the request context. Handlers
// downstream resolve the organization's pool through the registry.
func TenantMiddleware(registry *tenant.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.Header.Get(OrgHeader)
			if code == "" {
				httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "the "+OrgHeader+" header is required")
				return
			}
			if !knownOrg(registry, code) {
				httpx.Problem(w, http.StatusNotFound, "Unknown Organization", "no organization with code "+code)
				return
			}
			ctx := shared.ContextWithOrg(r.Context(), code)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorMiddleware stores the acting user id in context when the identity
// header is present. Permission middleware downstream rejects requests that
// carry no actor.
func ActorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(ActorHeader); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					httpx.Problem(w, http.StatusBadRequest, "Invalid Actor", "the "+ActorHeader+" header must be a positive integer")
					return
				}
				r = r.WithContext(shared.ContextWithActor(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func knownOrg(registry *tenant.Registry, code string) bool {
	if registry == nil {
		return false
	}
	for _, known := range registry.Codes() {
		if known == code {
			return true
		}
	}
	return false
}
