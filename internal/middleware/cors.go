package middleware

import (
	"net/http"

	"github.com/benvon/formdrop/internal/httperr"
	logpkg "github.com/benvon/formdrop/internal/logger"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORSAllowedMethods are the only methods permitted on cross-origin requests.
var CORSAllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// OriginAllowed reports whether origin exactly equals one of the allowed origins.
// There is no wildcard or subdomain matching.
func OriginAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if origin == candidate {
			return true
		}
	}
	return false
}

// CORS enforces the origin allowlist. Requests without an Origin header pass through,
// requests from an allowed origin get credentialed CORS headers from rs/cors, and
// requests from any other origin are rejected with 403 before reaching a route.
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	origins := append([]string(nil), allowedOrigins...)
	logger.Info("cors_configured", zap.Strings("allowed_origins", origins))

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return OriginAllowed(origin, origins)
		},
		AllowedMethods:       CORSAllowedMethods,
		AllowedHeaders:       []string{"*"},
		AllowCredentials:     true,
		OptionsSuccessStatus: http.StatusNoContent,
	})

	return func(next http.Handler) http.Handler {
		withHeaders := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !OriginAllowed(origin, origins) {
				logger.Warn("cors_origin_rejected",
					zap.String("origin", logpkg.SanitizeOrigin(origin)),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				)
				httperr.Write(w, r, httperr.Forbidden("CORS policy: This origin is not allowed: "+origin), logger)
				return
			}
			withHeaders.ServeHTTP(w, r)
		})
	}
}
