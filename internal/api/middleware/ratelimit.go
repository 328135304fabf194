package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api/metrics"
	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/infrastructure/ratelimit"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"
)

// RateLimit counts each request against limiter, keyed by client IP.
// Store failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, log zerolog.Logger) echo.MiddlewareFunc {
	policy := limiter.Policy().Name
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision, err := limiter.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				metrics.RateLimitErrorsTotal.WithLabelValues(policy).Inc()
				log.Warn().Err(err).Str("policy", policy).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set(headerRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter(time.Now()).Seconds()))
				h.Set(headerRetryAfter, strconv.Itoa(retry))
				metrics.RateLimitedTotal.WithLabelValues(policy).Inc()
				return domain.ErrRateLimited
			}
			return next(c)
		}
	}
}
