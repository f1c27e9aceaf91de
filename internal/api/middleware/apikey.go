package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ndewijer/brokerage-sync/internal/api/response"
)

// APIKeyMiddleware guards a route with a shared key sent as X-API-Key or as
// an Authorization bearer token. With no key configured every request is
// refused, so a trigger route is never left open by accident.
//
// Example usage in router:
//
//	r.With(middleware.APIKeyMiddleware(cfg.Server.APIKey)).Post("/", handler.Trigger)
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				response.RespondError(w, http.StatusServiceUnavailable, "Unauthorized", "API key not configured")
				return
			}

			provided := requestKey(r)
			if provided == "" {
				response.RespondError(w, http.StatusUnauthorized, "Unauthorized", "Missing API key")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				response.RespondError(w, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
