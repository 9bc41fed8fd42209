package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/pos-engine/pkg/auth"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

type stubAuthorizer struct {
	claims *pkgAuth.AccessTokenClaims
	err    error
	token  string
}

func (s *stubAuthorizer) Authorize(_ context.Context, token string) (*pkgAuth.AccessTokenClaims, error) {
	s.token = token
	return s.claims, s.err
}

func echoOperator() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(OperatorIDFromContext(r.Context()).String()))
	})
}

func TestAuthRejectsMissingHeaderWhenRequired(t *testing.T) {
	h := Auth(&stubAuthorizer{}, true, logger.Nop())(echoOperator())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthSeedsClaims(t *testing.T) {
	opID := uuid.New()
	authz := &stubAuthorizer{claims: &pkgAuth.AccessTokenClaims{OperatorID: opID, Role: enums.OperatorCashier}}
	h := Auth(authz, true, logger.Nop())(echoOperator())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, opID.String(), w.Body.String())
	assert.Equal(t, "abc.def", authz.token)
}

func TestAuthPropagatesAuthorizerError(t *testing.T) {
	authz := &stubAuthorizer{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")}
	h := Auth(authz, false, nil)(echoOperator())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthOptionalLetsAnonymousThrough(t *testing.T) {
	h := Auth(&stubAuthorizer{}, false, nil)(
		RequireRole(nil, enums.OperatorManager)(echoOperator()),
	)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uuid.Nil.String(), w.Body.String())
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name   string
		claims *pkgAuth.AccessTokenClaims
		want   int
	}{
		{name: "anonymous", claims: nil, want: http.StatusUnauthorized},
		{name: "cashier", claims: &pkgAuth.AccessTokenClaims{Role: enums.OperatorCashier}, want: http.StatusForbidden},
		{name: "manager", claims: &pkgAuth.AccessTokenClaims{Role: enums.OperatorManager}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireRole(nil, enums.OperatorManager)(echoOperator())
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tc.claims))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	h := RequestID(logger.Nop())(echoOperator())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "has spaces in it")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, "has spaces in it", w.Header().Get("X-Request-Id"))
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
