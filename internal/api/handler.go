package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deltashare/deltashare/internal/auth"
	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/config"
	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/sharing"
)

type ReadinessCheck func(ctx context.Context) error

// CatalogReader is the part of the catalog the recipient routes need.
type CatalogReader interface {
	ListShares(ctx context.Context, limit int, after *string) ([]catalog.Share, error)
	GetShare(ctx context.Context, name string) (catalog.Share, error)
	ListSchemas(ctx context.Context, share string, limit int, after *string) ([]catalog.Schema, error)
	ListTables(ctx context.Context, share, schema string, limit int, after *string) ([]catalog.Table, error)
	ListAllTables(ctx context.Context, share string, limit int, after *string) ([]catalog.Table, error)
	GetTable(ctx context.Context, share, schema, table string) (catalog.Table, error)
}

type SharingService interface {
	Query(ctx context.Context, req sharing.QueryRequest) (*sharing.QueryResult, error)
	Metadata(ctx context.Context, location string) (*sharing.MetadataResult, error)
	Version(ctx context.Context, location string, startingTimestamp *time.Time) (int64, error)
}

type TokenIssuer interface {
	Issue(claims auth.Claims, ttl time.Duration) (string, time.Time, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           CatalogReader
	Sharing           SharingService
	Tokens            TokenIssuer
	// PublicEndpoint is written into recipient profiles.
	PublicEndpoint string
	// ProfileRole is granted to tokens issued for recipient profiles.
	ProfileRole string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.ProfileRole == "" {
		deps.ProfileRole = cfg.Sharing.RecipientRole
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	recipient := func(h http.HandlerFunc) http.Handler {
		return protect(cfg, deps, auth.RequireRole(cfg.Sharing.RecipientRole, h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return protect(cfg, deps, auth.RequireRole(cfg.Sharing.AdminRole, h))
	}

	mux.Handle("GET /shares", recipient(func(w http.ResponseWriter, r *http.Request) {
		handleListShares(deps, w, r)
	}))
	mux.Handle("GET /shares/{share}", recipient(func(w http.ResponseWriter, r *http.Request) {
		handleGetShare(deps, w, r)
	}))
	mux.Handle("GET /shares/{share}/schemas", recipient(func(w http.ResponseWriter, r *http.Request) {
		handleListSchemas(deps, w, r)
	}))
	mux.Handle("GET /shares/{share}/schemas/{schema}/tables", recipient(func(w http.ResponseWriter, r *http.Request) {
		handleListTables(deps, w, r)
	}))
	mux.Handle("GET /shares/{share}/all-tables", recipient(func(w http.ResponseWriter, r *http.Request) {
		handleListAllTables(deps, w, r)
	}))
	// GET patterns also serve HEAD.
	mux.Handle("GET /shares/{share}/schemas/{schema}/tables/{table}/version", recipient(withTableLogAttrs(func(w http.ResponseWriter, r *http.Request) {
		handleTableVersion(deps, w, r)
	})))
	mux.Handle("GET /shares/{share}/schemas/{schema}/tables/{table}/metadata", recipient(withTableLogAttrs(func(w http.ResponseWriter, r *http.Request) {
		handleTableMetadata(deps, w, r)
	})))
	mux.Handle("POST /shares/{share}/schemas/{schema}/tables/{table}/query", recipient(withTableLogAttrs(func(w http.ResponseWriter, r *http.Request) {
		handleTableQuery(deps, w, r)
	})))

	mux.Handle("GET /admin/accounts", admin(func(w http.ResponseWriter, r *http.Request) {
		handleListAccounts(deps, w, r)
	}))
	mux.Handle("POST /admin/accounts", admin(func(w http.ResponseWriter, r *http.Request) {
		handleCreateAccount(deps, w, r)
	}))
	mux.Handle("GET /admin/accounts/{account}", admin(func(w http.ResponseWriter, r *http.Request) {
		handleGetAccount(deps, w, r)
	}))
	mux.Handle("GET /admin/accounts/{account}/profile", admin(func(w http.ResponseWriter, r *http.Request) {
		handleAccountProfile(deps, w, r)
	}))
	mux.Handle("POST /admin/tables", admin(func(w http.ResponseWriter, r *http.Request) {
		handleRegisterTable(deps, w, r)
	}))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func protect(cfg config.Config, deps Dependencies, next http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return next
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, codeInternal, "auth middleware is required by configuration")
		})
	}
	return deps.AuthMiddleware(next)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
