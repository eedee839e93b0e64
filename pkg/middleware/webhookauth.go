package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// HeaderWebhookSecret is the header carrying the shared secret set on the
// inbound email pipeline.
const HeaderWebhookSecret = "X-Webhook-Secret"

// WebhookAuth rejects requests whose shared secret header does not match.
// An empty configured secret disables the check (local development).
func WebhookAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}

			provided := c.Request().Header.Get(HeaderWebhookSecret)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				return httperror.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
			}

			return next(c)
		}
	}
}
