package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurora-erp/aurora-erp/internal/httpapi"
	"github.com/aurora-erp/aurora-erp/internal/observability"
)

// RouterDeps aggregates everything the HTTP surface needs.
type RouterDeps struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Actors  httpapi.ActorSource
	Handler *httpapi.Handler
}

// NewRouter assembles the router: platform middleware, health and metrics
// endpoints, then the authenticated application surface.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  deps.Logger,
		Config:  deps.Config,
		Metrics: deps.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httpapi.WithActor(deps.Actors))
		deps.Handler.MountRoutes(r)
	})

	return r
}
