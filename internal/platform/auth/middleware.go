package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Claims are the token claims the API relies on. The subject is the owner
// identity every measurement and profile is scoped to.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

type JWTConfig struct {
	// Secret is the HMAC key shared with the identity provider.
	Secret   []byte
	Issuer   string
	Audience string
	// Skipper, when it returns true, lets a request through without a token.
	Skipper func(c echo.Context) bool
}

// JWTMiddleware requires a valid HS256 bearer token on every request not
// skipped and stores its subject as the request's user id.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := bearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setUser(c, claims.Subject)
			return next(c)
		}
	}
}

// DevAuthMiddleware authenticates every request as devUserID unless it
// carries a bearer token, in which case the token is checked by strict.
// It is only installed when ENV=development.
func DevAuthMiddleware(devUserID string, strict echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		checked := next
		if strict != nil {
			checked = strict(next)
		}
		return func(c echo.Context) error {
			if _, ok := bearerToken(c.Request()); ok {
				return checked(c)
			}
			setUser(c, devUserID)
			return next(c)
		}
	}
}

// RequireUser rejects requests that reached a handler without an identity.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func setUser(c echo.Context, userID string) {
	ctx := ContextWithUserID(c.Request().Context(), userID)
	c.SetRequest(c.Request().WithContext(ctx))
	c.Set(string(UserIDKey), userID)
}

// ContextWithUserID returns ctx carrying userID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}
