package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Only the health checks used by the
// load balancer and orchestrator belong here; every /api/v1 route is owned
// by a user and needs a subject.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it as the Skipper on JWTConfig. It matches the
// registered route pattern, so query strings and trailing path params do
// not affect the result.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is served without credentials.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
