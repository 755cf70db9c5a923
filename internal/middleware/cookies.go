package middleware

import (
	"net/http"

	"github.com/benvon/formdrop/internal/request"
)

// Cookies parses the Cookie header once and exposes the values through request.Cookies.
// When a name repeats, the first value wins.
func Cookies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parsed := make(map[string]string)
		for _, c := range r.Cookies() {
			if _, seen := parsed[c.Name]; !seen {
				parsed[c.Name] = c.Value
			}
		}
		next.ServeHTTP(w, r.WithContext(request.WithCookies(r.Context(), parsed)))
	})
}
