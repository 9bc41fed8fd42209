package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/pos-engine/pkg/auth"
)

type contextKey string

const (
	ctxClaims       contextKey = "operator_claims"
	ctxAuthOptional contextKey = "auth_optional"
)

// ClaimsFromContext returns the verified token claims, or nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) *pkgAuth.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*pkgAuth.AccessTokenClaims); ok {
		return v
	}
	return nil
}

// OperatorIDFromContext returns uuid.Nil when no operator is signed in.
func OperatorIDFromContext(ctx context.Context) uuid.UUID {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.OperatorID
	}
	return uuid.Nil
}

// WithClaims injects verified claims into the context.
func WithClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClaims, claims)
}

func authOptional(ctx context.Context) bool {
	v, _ := ctx.Value(ctxAuthOptional).(bool)
	return v
}
