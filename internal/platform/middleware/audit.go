package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// auditedResources are the /api/v1 resources that hold health data. The
// value reports whether the resource is a collection.
var auditedResources = map[string]bool{
	"measurements":    true,
	"interpretations": true,
	"profile":         false,
}

// AuditEntry describes one access to health data.
type AuditEntry struct {
	UserID     string
	Resource   string
	ResourceID string
	Action     string // read, list, create, update, delete, export
	Method     string
	Path       string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit emits a structured "phi_access" event for every request that
// touches measurements, interpretations or the profile. Errors returned by
// the handler are rendered first so the recorded status is the one sent.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, id, rest, ok := splitAuditPath(req.URL.Path)
			if !ok {
				return next(c)
			}

			if err := next(c); err != nil {
				c.Error(err)
			}

			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(c.Request().Context()),
				Resource:   resource,
				ResourceID: id,
				Action:     auditAction(req.Method, resource, id, rest),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			evt := logger.Info()
			if entry.StatusCode == http.StatusUnauthorized || entry.StatusCode == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Str("user_agent", entry.UserAgent).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("phi_access")

			return nil
		}
	}
}

// splitAuditPath returns the audited collection, an optional UUID member
// and any trailing segment of an /api/v1 path.
func splitAuditPath(path string) (resource, id, rest string, ok bool) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", "", "", false
	}
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	if _, ok := auditedResources[segments[0]]; !ok {
		return "", "", "", false
	}
	resource = segments[0]
	tail := segments[1:]
	if len(tail) > 0 {
		if _, err := uuid.Parse(tail[0]); err == nil {
			id = tail[0]
			tail = tail[1:]
		}
	}
	return resource, id, strings.Join(tail, "/"), true
}

func auditAction(method, resource, id, rest string) string {
	switch method {
	case http.MethodPost:
		if rest != "" {
			return "update"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	switch {
	case rest == "export":
		return "export"
	case id == "" && rest == "" && auditedResources[resource]:
		return "list"
	}
	return "read"
}
