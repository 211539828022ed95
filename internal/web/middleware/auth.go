package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/dqgate/internal/apperr"
	"github.com/JonMunkholm/dqgate/internal/config"
	"github.com/JonMunkholm/dqgate/internal/logging"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth guards a route group with APIKeyHeader. With RequireAPIKey off
// the group is left open. Rejections use the apperr AUTH codes.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		keys[i] = []byte(k)
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checkAPIKey(r.Header.Get(APIKeyHeader), keys); err != nil {
				logging.FromContext(r.Context()).Warn("request rejected",
					"reason", err.Error(),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				apperr.WriteHTTP(w, err, 0)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkAPIKey compares got with every key in constant time so the response
// time does not reveal which key matched.
func checkAPIKey(got string, keys [][]byte) error {
	if got == "" {
		return apperr.ErrMissingAPIKey
	}
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(got), k)
	}
	if match != 1 {
		return apperr.ErrInvalidAPIKey
	}
	return nil
}
