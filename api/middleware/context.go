package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/auth"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// WithPrincipal stores the authenticated caller on the context.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	if ctx == nil {
		return auth.Principal{}, false
	}
	principal, ok := ctx.Value(ctxPrincipal).(auth.Principal)
	return principal, ok && principal.UserID != uuid.Nil
}

// UserIDFromContext returns the caller's id as a string, or "".
func UserIDFromContext(ctx context.Context) string {
	if principal, ok := PrincipalFromContext(ctx); ok {
		return principal.UserID.String()
	}
	return ""
}

// RoleFromContext returns the caller's role, or "".
func RoleFromContext(ctx context.Context) enums.UserRole {
	if principal, ok := PrincipalFromContext(ctx); ok {
		return principal.Role
	}
	return ""
}

// RequirePrincipal returns the caller or an UNAUTHORIZED error.
func RequirePrincipal(ctx context.Context) (auth.Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return principal, nil
}
