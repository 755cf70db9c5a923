package request

import (
	"context"
	"net"
	"net/http"

	"github.com/benvon/formdrop/internal/models"
)

type contextKey string

const (
	userContextKey     contextKey = "user"
	clientIPContextKey contextKey = "client_ip"
	secureContextKey   contextKey = "secure"
	cookiesContextKey  contextKey = "cookies"
	formContextKey     contextKey = "form"
)

// WithClientIP records the client IP resolved by the proxy-trust layer.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

// ClientIP returns the resolved client IP, falling back to the host part of RemoteAddr.
// Forwarding headers are only honored when the proxy-trust layer resolved them.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithSecure marks the request as received over HTTPS at the edge.
func WithSecure(ctx context.Context, secure bool) context.Context {
	return context.WithValue(ctx, secureContextKey, secure)
}

// IsSecure reports whether the request arrived over HTTPS, either directly or as
// reported by a trusted proxy.
func IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	secure, _ := r.Context().Value(secureContextKey).(bool)
	return secure
}

// WithCookies attaches the parsed request cookies.
func WithCookies(ctx context.Context, cookies map[string]string) context.Context {
	return context.WithValue(ctx, cookiesContextKey, cookies)
}

// Cookies returns the cookies parsed by the cookie middleware, or nil.
func Cookies(r *http.Request) map[string]string {
	c, _ := r.Context().Value(cookiesContextKey).(map[string]string)
	return c
}

// Cookie returns one parsed cookie value.
func Cookie(r *http.Request, name string) (string, bool) {
	v, ok := Cookies(r)[name]
	return v, ok
}

// WithForm attaches the nested form body parsed from a URL-encoded request.
func WithForm(ctx context.Context, form map[string]any) context.Context {
	return context.WithValue(ctx, formContextKey, form)
}

// Form returns the nested URL-encoded body, or nil when the request had none.
func Form(r *http.Request) map[string]any {
	f, _ := r.Context().Value(formContextKey).(map[string]any)
	return f
}

// WithUser returns a context with the user attached.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user from the request context, or nil if missing or wrong type.
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}
