package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/formdrop/internal/httperr"
	logpkg "github.com/benvon/formdrop/internal/logger"
	"github.com/benvon/formdrop/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const rateLimitPrefix = "formdrop_limiter"

// NewRateLimitStore returns a Redis-backed limiter store, or an in-process store when
// client is nil. The in-process store only limits per instance.
func NewRateLimitStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix}), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		return nil, fmt.Errorf("create redis limiter store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per client IP. rate uses the ulule format, e.g. "20-M".
func RateLimit(store limiter.Store, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", rate, err)
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			httperr.Write(w, r, httperr.New(http.StatusTooManyRequests, "Too many requests, please try again later"), logger)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("rate_limiter_unavailable",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Error(err),
			)
			httperr.Write(w, r, httperr.Wrap(http.StatusServiceUnavailable, "Service temporarily unavailable", err), logger)
		}),
	)
	return mw.Handler, nil
}
