// Package identity resolves the authenticated principal for a request.
// Authentication itself happens upstream at the API gateway; this service
// trusts the forwarded identity headers and only validates their shape.
package identity

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lingokit/backend/core"
)

// Header names set by the gateway after it verifies the session.
const (
	UserIDHeader    = "X-User-ID"
	UserEmailHeader = "X-User-Email"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	userEmailKey
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID uuid.UUID
	Email  string // optional, forwarded for gateway customer creation
}

// Middleware extracts the principal from the identity headers and stores it
// in the request context. Requests without a parseable user ID are rejected
// with 401 before reaching any handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			_ = core.WriteErrorDetail(w, core.ErrUnauthorized, "Missing "+UserIDHeader+" header")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			_ = core.WriteErrorDetail(w, core.ErrUnauthorized, "Invalid "+UserIDHeader+" header")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		if email := r.Header.Get(UserEmailHeader); email != "" {
			ctx = context.WithValue(ctx, userEmailKey, email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the principal stored by Middleware.
// The boolean is false when the request skipped the middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok {
		return Principal{}, false
	}

	p := Principal{UserID: userID}
	if email, ok := ctx.Value(userEmailKey).(string); ok {
		p.Email = email
	}
	return p, true
}
