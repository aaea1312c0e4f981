package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/interview-recorder/internal/journal"
)

// AuthMiddleware handles static API key authentication
type AuthMiddleware struct {
	apiKey string
}

// NewAuthMiddleware creates new auth middleware. An empty key disables authentication.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: apiKey}
}

// Authenticate verifies the API key.
// Supports "Bearer <key>" or "<key>" in Authorization, the X-API-Key header,
// and an api_key query parameter for WebSocket clients that cannot set headers.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing_api_key", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1 {
			slog.Warn("invalid api key attempt", "key_prefix", journal.MaskToken(apiKey), "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAPIKey extracts API key from request headers
func extractAPIKey(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Handle "Bearer xxx" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		// Handle raw key in Authorization header
		return authHeader
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	return r.URL.Query().Get("api_key")
}
