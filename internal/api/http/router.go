package apihttp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alarmcast/internal/auth"
)

// Deps carries the collaborators the router mounts.
type Deps struct {
	Snapshots SnapshotProvider
	Resolver  PermissionSource
	Presence  Presence
	Socket    http.Handler
	Auth      *auth.Middleware

	// Optional.
	Sessions  SessionSource
	RateLimit func(http.Handler) http.Handler
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps Deps) (http.Handler, error) {
	if deps.Snapshots == nil {
		return nil, errors.New("router: nil snapshots")
	}
	if deps.Resolver == nil {
		return nil, errors.New("router: nil resolver")
	}
	if deps.Presence == nil {
		return nil, errors.New("router: nil presence")
	}
	if deps.Socket == nil {
		return nil, errors.New("router: nil socket handler")
	}
	if deps.Auth == nil {
		return nil, errors.New("router: nil auth middleware")
	}

	r := chi.NewRouter()
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit)
	}
	r.Use(deps.Auth.Wrap)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Method(http.MethodGet, "/ws", deps.Socket)
	r.Method(http.MethodGet, "/api/v1/alarms/active", NewActiveAlarmsHandler(deps.Snapshots, deps.Resolver))
	r.Method(http.MethodGet, "/api/v1/exports/alarms.{format}", NewExportAlarmsHandler(deps.Snapshots, deps.Resolver))
	r.Method(http.MethodGet, "/api/v1/online", NewOnlineStatsHandler(deps.Presence))
	if deps.Sessions != nil {
		r.Method(http.MethodGet, "/api/v1/sessions/recent", NewRecentSessionsHandler(deps.Sessions))
	}

	return r, nil
}
