package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/config"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/logging"
)

// Auth error codes.
const (
	CodeMissingKey = "AUTH_MISSING_KEY"
	CodeInvalidKey = "AUTH_INVALID_KEY"
)

// APIKeyAuth rejects requests without an accepted key when the config
// requires one. The key is read from X-API-Key or an "Authorization: Bearer"
// header. With RequireAPIKey set and no keys configured every request fails.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			switch {
			case key == "":
				authError(w, r, http.StatusUnauthorized, "missing API key", CodeMissingKey)
			case !keyAccepted(key, digests):
				authError(w, r, http.StatusForbidden, "invalid API key", CodeInvalidKey)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// keyAccepted compares fixed-size digests against every configured key.
func keyAccepted(key string, digests [][sha256.Size]byte) bool {
	sum := sha256.Sum256([]byte(key))
	match := 0
	for _, d := range digests {
		match |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	return match == 1
}

func authError(w http.ResponseWriter, r *http.Request, status int, msg, code string) {
	logging.FromContext(r.Context()).Warn("auth rejected",
		"code", code,
		"method", r.Method,
		"path", r.URL.Path,
		"ip", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "message": msg, "code": code})
}
