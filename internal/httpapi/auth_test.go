package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func authProbe(t *testing.T, token string, mutate func(*http.Request)) int {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthMiddleware(token, zaptest.NewLogger(t), next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/research", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthMiddlewareDisabledWithoutToken(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, authProbe(t, "", nil))
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	code := authProbe(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
	})
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	code := authProbe(t, "secret", func(r *http.Request) {
		r.URL.RawQuery = "access_token=secret"
	})
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	code := authProbe(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, authProbe(t, "secret", nil))
}
