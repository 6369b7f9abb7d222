package profile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/validate"
)

func newTestHandler() (*Handler, *mockProfileRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	h := NewHandler(svc)
	h.now = func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) }
	e := echo.New()
	e.Validator = validate.New()
	return h, repo, e
}

func newRequest(e *echo.Echo, method, body, owner string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/api/v1/profile", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if owner != "" {
		req = req.WithContext(auth.ContextWithUserID(req.Context(), owner))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateProfile(t *testing.T) {
	h, repo, e := newTestHandler()
	body := `{"first_name":"Anna","dob":"1985-02-28","sex":"female","weight":61.5,"phone":"+48123123123","timezone":"Europe/Warsaw"}`
	c, rec := newRequest(e, http.MethodPost, body, "u1")

	if err := h.CreateProfile(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var got Record
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DOB == nil || *got.DOB != "1985-02-28" || got.Timezone != "Europe/Warsaw" {
		t.Errorf("unexpected record %+v", got)
	}
	if _, ok := repo.profiles["u1"]; !ok {
		t.Error("profile not stored")
	}
}

func TestHandler_CreateProfile_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing timezone", `{"first_name":"Anna"}`, "timezone"},
		{"bad timezone", `{"timezone":"Nowhere/City"}`, "timezone"},
		{"bad sex", `{"timezone":"UTC","sex":"x"}`, "sex"},
		{"zero weight", `{"timezone":"UTC","weight":0}`, "weight"},
		{"heavy", `{"timezone":"UTC","weight":500.1}`, "weight"},
		{"phone", `{"timezone":"UTC","phone":"123"}`, "phone"},
		{"dob format", `{"timezone":"UTC","dob":"28.02.1985"}`, "dob"},
		{"dob future", `{"timezone":"UTC","dob":"2030-01-01"}`, "dob"},
		{"blank name", `{"timezone":"UTC","first_name":"   "}`, "first_name"},
		{"unknown field", `{"timezone":"UTC","user_id":"other"}`, "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, e := newTestHandler()
			c, rec := newRequest(e, http.MethodPost, tt.body, "u1")
			if err := h.CreateProfile(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"field":"`+tt.field+`"`) {
				t.Errorf("expected field %s in %s", tt.field, rec.Body.String())
			}
		})
	}
}

func TestHandler_CreateProfile_Conflict(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newRequest(e, http.MethodPost, `{"timezone":"UTC"}`, "u1")
	h.CreateProfile(c)

	c, rec := newRequest(e, http.MethodPost, `{"timezone":"UTC"}`, "u1")
	h.CreateProfile(c)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ProfileExists") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_GetProfile_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := newRequest(e, http.MethodGet, "", "u1")
	if err := h.GetProfile(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetProfile_Unauthenticated(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newRequest(e, http.MethodGet, "", "")
	err := h.GetProfile(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_UpdateProfile(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newRequest(e, http.MethodPost, `{"timezone":"UTC","first_name":"Jan","phone":"+48111222333"}`, "u1")
	h.CreateProfile(c)

	c, rec := newRequest(e, http.MethodPut, `{"phone":null,"dob":"1970-01-31","weight":90}`, "u1")
	if err := h.UpdateProfile(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got Record
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Phone != nil || got.FirstName == nil || *got.FirstName != "Jan" || got.DOB == nil || *got.DOB != "1970-01-31" {
		t.Errorf("unexpected merge %+v", got)
	}
}

func TestHandler_UpdateProfile_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newRequest(e, http.MethodPost, `{"timezone":"UTC"}`, "u1")
	h.CreateProfile(c)

	for _, body := range []string{`{}`, `{"sex":"robot"}`, `{"weight":-3}`, `{"phone":"0048"}`, `{"dob":"1970-02-30"}`, `{"timezone":"Bad/Zone"}`, `{"last_name":""}`} {
		t.Run(body, func(t *testing.T) {
			c, rec := newRequest(e, http.MethodPut, body, "u1")
			if err := h.UpdateProfile(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_SetReminder(t *testing.T) {
	h, repo, e := newTestHandler()
	c, _ := newRequest(e, http.MethodPost, `{"timezone":"UTC"}`, "u1")
	h.CreateProfile(c)

	c, rec := newRequest(e, http.MethodPost, `{"enabled":true}`, "u1")
	if err := h.SetReminder(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !repo.profiles["u1"].ReminderEnabled {
		t.Fatalf("expected reminder enabled, got %d %s", rec.Code, rec.Body.String())
	}

	c, rec = newRequest(e, http.MethodPost, `{}`, "u1")
	h.SetReminder(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without enabled, got %d", rec.Code)
	}

	c, rec = newRequest(e, http.MethodPost, `{"enabled":false}`, "u2")
	h.SetReminder(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without profile, got %d", rec.Code)
	}
}
