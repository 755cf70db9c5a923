package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/benvon/formdrop/internal/request"
)

// TrustProxy trusts the given number of reverse-proxy hops in front of the server.
// The client IP is taken from X-Forwarded-For, skipping hops-1 proxy entries from the
// right, and the scheme from the first X-Forwarded-Proto value.
func TrustProxy(hops int) func(http.Handler) http.Handler {
	if hops < 1 {
		hops = 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if forwarded := forwardedFor(r); len(forwarded) > 0 {
				idx := len(forwarded) - hops
				if idx < 0 {
					idx = 0
				}
				ctx = request.WithClientIP(ctx, forwarded[idx])
			}

			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
				first, _, _ := strings.Cut(proto, ",")
				ctx = request.WithSecure(ctx, strings.EqualFold(strings.TrimSpace(first), "https"))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// forwardedFor returns the X-Forwarded-For chain, leftmost (original client) first.
// Entries that are not IP addresses are skipped.
func forwardedFor(r *http.Request) []string {
	var out []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, part := range strings.Split(header, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				out = append(out, ip)
			}
		}
	}
	return out
}
