package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/fleetconnect/matchbook/pkg/context"
	"github.com/fleetconnect/matchbook/pkg/ratelimit"
	"github.com/labstack/echo/v4"
)

// RateLimit buckets requests by tenant and remote IP. Limiter errors fail
// open so a Redis outage does not take the webhook down with it.
func RateLimit(limiter ratelimit.Limiter, limit int64, window time.Duration, logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			key := fmt.Sprintf("%s:%s", context.GetTenantID(ctx), c.RealIP())
			result, err := limiter.Allow(ctx, key, limit, window)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Error("rate limit check failed, allowing request")
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryIn.Seconds())+1))
				return httperror.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}
