package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// CallbackSecretHeader carries the shared secret on provider callbacks.
const CallbackSecretHeader = "X-Callback-Secret"

// CallbackSecret rejects callbacks whose secret does not match. The secret is
// read from the header or the secret query parameter. An empty configured
// secret lets every request through and logs a warning per request.
func CallbackSecret(secret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				logger.Warn().Str("path", r.URL.Path).Msg("callback: secret not configured, accepting unauthenticated callback")
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimSpace(r.Header.Get(CallbackSecretHeader))
			if got == "" {
				got = strings.TrimSpace(r.URL.Query().Get("secret"))
			}
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				logger.Warn().Str("remote_ip", ClientIP(r)).Msg("callback: rejected, bad secret")
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid callback secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
