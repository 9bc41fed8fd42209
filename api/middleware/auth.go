package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/pos-engine/api/responses"
	pkgAuth "github.com/angelmondragon/pos-engine/pkg/auth"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// Authorizer verifies a bearer token against the register's live sessions.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*pkgAuth.AccessTokenClaims, error)
}

// Auth validates a bearer token and seeds the request context with the
// operator's claims. With required=false a missing header is let through
// anonymously, but a bad token is still rejected.
func Auth(authz Authorizer, required bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				if required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				ctx := context.WithValue(r.Context(), ctxAuthOptional, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := authz.Authorize(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithOperatorID(ctx, claims.OperatorID.String())
				ctx = logg.WithField(ctx, "operator_role", string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits operators holding one of roles. Anonymous requests pass
// only when Auth ran in optional mode.
func RequireRole(logg *logger.Logger, roles ...enums.OperatorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				if authOptional(r.Context()) {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in"))
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator role not permitted").
				WithDetails(map[string]any{"role": string(claims.Role)}))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
