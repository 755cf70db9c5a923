package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/formdrop/internal/httperr"
	logpkg "github.com/benvon/formdrop/internal/logger"
	"go.uber.org/zap"
)

// Recover turns panics in downstream handlers into a 500 with the standard error body.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
					zap.Stack("stack"),
				)
				httperr.Write(w, r, httperr.Internal(fmt.Errorf("panic: %v", rec)), nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
