package http

import (
	"context"

	"mentorbook-backend/internal/security"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the token claims the auth middleware attached.
func ClaimsFromContext(ctx context.Context) (*security.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*security.UserClaims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the authenticated caller, or "" on public routes.
func UserIDFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}
