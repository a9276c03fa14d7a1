package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"worksign/pkg/requestcontext"
)

// TokenValidator validates a back-office bearer token and returns the actor
// identity it carries.
type TokenValidator interface {
	Validate(token string) (actor string, err error)
}

// AuthObserver is notified of denied authentication attempts. It is a passive
// collaborator: failures to observe never affect the request.
type AuthObserver interface {
	AuthDenied(ctx context.Context, path, reason string)
}

// RequireAuth guards the back-office API with bearer-token authentication.
// The public review surface never goes through this; its capability token is
// the whole authorization story there.
func RequireAuth(validator TokenValidator, logger *slog.Logger, observer AuthObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				deny(ctx, w, logger, observer, r.URL.Path, "missing bearer token")
				return
			}
			actor, err := validator.Validate(raw)
			if err != nil {
				deny(ctx, w, logger, observer, r.URL.Path, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

func deny(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, observer AuthObserver, path, reason string) {
	logger.WarnContext(ctx, "unauthorized back-office request",
		"request_id", requestcontext.RequestID(ctx),
		"path", path,
		"reason", reason,
	)
	if observer != nil {
		observer.AuthDenied(ctx, path, reason)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","detail":"invalid or missing credentials"}`))
}
