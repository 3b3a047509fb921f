package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// ActorSource resolves a user ID to an acting identity.
type ActorSource interface {
	Actor(ctx context.Context, userID uuid.UUID) (shared.Actor, error)
}

// headerUserID is the identity seam. Upstream authentication (gateway or
// session layer) sets it; this service trusts it and resolves the role.
const headerUserID = "X-User-ID"

// WithActor resolves the acting user from the request header and stores it
// in the context. Requests without a resolvable identity are rejected.
func WithActor(source ActorSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(r.Header.Get(headerUserID))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or malformed user identity"})
				return
			}
			actor, err := source.Actor(r.Context(), userID)
			if err != nil {
				if shared.IsNotFound(err) {
					writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unknown user"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.WithActor(r.Context(), actor)))
		})
	}
}
