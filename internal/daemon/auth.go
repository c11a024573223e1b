package daemon

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"paddock/internal/services"
)

// authMiddleware returns a middleware that validates bearer tokens and
// stamps each request with a request ID for log correlation. If token is
// empty, no authentication is required and all requests pass through.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		next(w, r.WithContext(services.WithRequestID(r.Context(), requestID)))
	}
}
