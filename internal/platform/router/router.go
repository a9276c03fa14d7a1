// Package router assembles the HTTP surface: public token-gated endpoints,
// the authenticated back-office API, and operational endpoints.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"worksign/internal/platform/middleware"
	"worksign/internal/review/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Public    *handler.Public
	Admin     *handler.Admin
	Validator middleware.TokenValidator
	Observer  middleware.AuthObserver
	Logger    *slog.Logger
}

// New builds the service router. The public subtree is unauthenticated; the
// internal subtree requires a bearer token.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMeta)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))

	r.Group(func(r chi.Router) {
		d.Public.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Validator, d.Logger, d.Observer))
		d.Admin.Register(r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
