package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AuthMiddleware enforces a static bearer token on the consumer API. An
// empty token disables enforcement (local development).
func AuthMiddleware(token string, logger *zap.Logger, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			logger.Warn("Rejected unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="deepresearch"`)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header, or from
// the access_token query parameter for EventSource clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}
