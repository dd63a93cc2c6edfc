package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/samlbridge/pkg/httputil"
	"github.com/platinummonkey/samlbridge/pkg/observability"
	"github.com/platinummonkey/samlbridge/pkg/token"
)

// contextKey is the type for context keys
type contextKey string

// claimsKey is the context key for verified token claims
const claimsKey contextKey = "token_claims"

// AuthMiddleware rejects requests that do not carry a valid bearer token
// minted by this bridge.
type AuthMiddleware struct {
	issuer *token.Issuer
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(issuer *token.Issuer) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer}
}

// Handler wraps an HTTP handler with bearer token verification
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := httputil.BearerToken(r)
		if raw == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := m.issuer.Verify(raw)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := WithClaims(r.Context(), claims)
		ctx = observability.WithSubjectID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts verified claims placed by the middleware.
// Returns nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	if !ok {
		return nil
	}
	return claims
}
