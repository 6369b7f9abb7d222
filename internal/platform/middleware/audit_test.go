package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/auth"
)

const auditID = "3f1c9a52-7d4e-4b8a-9e61-2c5d8f0a1b23"

func runAudit(t *testing.T, method, path, userID string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, []map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("User-Agent", "bp-test/1.0")
	if userID != "" {
		req = req.WithContext(auth.ContextWithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "rid-audit")

	if err := Audit(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec, logLines(t, &buf)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestAudit_ListMeasurements(t *testing.T) {
	_, lines := runAudit(t, http.MethodGet, "/api/v1/measurements?page=2", "user-1", okHandler)
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	l := lines[0]
	if l["type"] != "phi_access" {
		t.Errorf("expected type phi_access, got %v", l["type"])
	}
	if l["resource"] != "measurements" || l["action"] != "list" {
		t.Errorf("unexpected resource/action: %v/%v", l["resource"], l["action"])
	}
	if l["user_id"] != "user-1" {
		t.Errorf("expected user_id user-1, got %v", l["user_id"])
	}
	if l["request_id"] != "rid-audit" {
		t.Errorf("expected request_id rid-audit, got %v", l["request_id"])
	}
	if l["user_agent"] != "bp-test/1.0" {
		t.Errorf("expected user agent, got %v", l["user_agent"])
	}
}

func TestAudit_MemberActions(t *testing.T) {
	tests := []struct {
		method, path, action string
	}{
		{http.MethodPost, "/api/v1/measurements", "create"},
		{http.MethodPut, "/api/v1/measurements/" + auditID, "update"},
		{http.MethodDelete, "/api/v1/measurements/" + auditID, "delete"},
		{http.MethodGet, "/api/v1/measurements/" + auditID + "/interpretations", "read"},
		{http.MethodGet, "/api/v1/measurements/export", "export"},
		{http.MethodGet, "/api/v1/profile", "read"},
		{http.MethodGet, "/api/v1/interpretations", "list"},
		{http.MethodPost, "/api/v1/profile/reminder", "update"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			_, lines := runAudit(t, tt.method, tt.path, "user-1", okHandler)
			if len(lines) != 1 {
				t.Fatalf("expected 1 audit line, got %d", len(lines))
			}
			if lines[0]["action"] != tt.action {
				t.Errorf("expected action %q, got %v", tt.action, lines[0]["action"])
			}
		})
	}
}

func TestAudit_RecordsResourceID(t *testing.T) {
	_, lines := runAudit(t, http.MethodDelete, "/api/v1/measurements/"+auditID, "user-1", okHandler)
	if lines[0]["resource_id"] != auditID {
		t.Errorf("expected resource_id %s, got %v", auditID, lines[0]["resource_id"])
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	for _, p := range []string{"/health", "/api/v1/other", "/measurements"} {
		_, lines := runAudit(t, http.MethodGet, p, "", okHandler)
		if len(lines) != 0 {
			t.Errorf("%s: expected no audit line, got %v", p, lines)
		}
	}
}

func TestAudit_RecordsRenderedErrorStatus(t *testing.T) {
	rec, lines := runAudit(t, http.MethodGet, "/api/v1/profile", "", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %d", rec.Code)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	if lines[0]["level"] != "warn" {
		t.Errorf("expected warn for denied access, got %v", lines[0]["level"])
	}
	if lines[0]["status"] != float64(http.StatusUnauthorized) {
		t.Errorf("expected status 401, got %v", lines[0]["status"])
	}
}

func TestSplitAuditPath(t *testing.T) {
	tests := []struct {
		path               string
		resource, id, rest string
		ok                 bool
	}{
		{"/api/v1/measurements", "measurements", "", "", true},
		{"/api/v1/measurements/", "measurements", "", "", true},
		{"/api/v1/measurements/" + auditID, "measurements", auditID, "", true},
		{"/api/v1/measurements/" + auditID + "/interpretations", "measurements", auditID, "interpretations", true},
		{"/api/v1/measurements/export", "measurements", "", "export", true},
		{"/api/v1/interpretations", "interpretations", "", "", true},
		{"/api/v1/unknown", "", "", "", false},
		{"/health", "", "", "", false},
	}
	for _, tt := range tests {
		resource, id, rest, ok := splitAuditPath(tt.path)
		if resource != tt.resource || id != tt.id || rest != tt.rest || ok != tt.ok {
			t.Errorf("splitAuditPath(%q) = (%q, %q, %q, %v), want (%q, %q, %q, %v)",
				tt.path, resource, id, rest, ok, tt.resource, tt.id, tt.rest, tt.ok)
		}
	}
}
