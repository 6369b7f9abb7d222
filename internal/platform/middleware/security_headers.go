package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the response headers expected of a JSON API that
// serves personal health data. Every response gets them, including errors.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Bodies are JSON or CSV; browsers must not guess otherwise.
			h.Set("X-Content-Type-Options", "nosniff")

			// No page of ours is meant to be framed.
			h.Set("X-Frame-Options", "DENY")

			// The legacy filter is off; CSP below covers it.
			h.Set("X-XSS-Protection", "0")

			// Nothing is loaded or embedded from an API response.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// One year of HTTPS-only, subdomains included.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			h.Set("Referrer-Policy", "no-referrer")

			// The API needs no device access.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Readings and exports must not end up in shared caches.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
