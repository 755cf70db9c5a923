package middleware

import (
	"net/http"

	"github.com/benvon/formdrop/internal/request"
)

// SecurityHeaders sets security headers on all responses
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			// Uploaded files are embedded by the frontend, which lives on another origin.
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")

			// HSTS only over HTTPS, including HTTPS terminated at a trusted proxy.
			if enableHSTS && request.IsSecure(r) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
