package profile

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bptrack/bptrack/internal/platform/apierror"
	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/validate"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/profile", h.GetProfile)
	api.POST("/profile", h.CreateProfile)
	api.PUT("/profile", h.UpdateProfile)
	api.POST("/profile/reminder", h.SetReminder)
}

const (
	nameTag   = "max=100"
	sexTag    = "oneof=male female other"
	weightTag = "gt=0,lte=500"
	phoneTag  = "e164"
	dobTag    = "datetime=2006-01-02"
)

type createRequest struct {
	FirstName *string  `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string  `json:"last_name" validate:"omitempty,max=100"`
	DOB       *string  `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Sex       *string  `json:"sex" validate:"omitempty,oneof=male female other"`
	Weight    *float64 `json:"weight" validate:"omitempty,gt=0,lte=500"`
	Phone     *string  `json:"phone" validate:"omitempty,e164"`
	Timezone  string   `json:"timezone" validate:"required,timezone"`
}

type updateRequest struct {
	FirstName       Optional[string]  `json:"first_name" validate:"-"`
	LastName        Optional[string]  `json:"last_name" validate:"-"`
	DOB             Optional[string]  `json:"dob" validate:"-"`
	Sex             Optional[string]  `json:"sex" validate:"-"`
	Weight          Optional[float64] `json:"weight" validate:"-"`
	Phone           Optional[string]  `json:"phone" validate:"-"`
	Timezone        *string           `json:"timezone" validate:"omitempty,timezone"`
	ReminderEnabled *bool             `json:"reminder_enabled"`
}

type reminderRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *Handler) GetProfile(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreateProfile(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	var req createRequest
	if err := validate.BindStrict(c, &req); err != nil {
		return respondError(c, err)
	}

	verr := &validate.Error{}
	checkName(verr, "first_name", req.FirstName)
	checkName(verr, "last_name", req.LastName)
	dob := h.parseDOB(verr, req.DOB)
	if err := verr.OrNil(); err != nil {
		return respondError(c, err)
	}

	rec, err := h.svc.Create(c.Request().Context(), owner, CreateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		DOB:       dob,
		Sex:       req.Sex,
		Weight:    req.Weight,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	var req updateRequest
	if err := validate.BindStrict(c, &req); err != nil {
		return respondError(c, err)
	}

	verr := &validate.Error{}
	for _, f := range []struct {
		name string
		opt  Optional[string]
		tag  string
	}{
		{"first_name", req.FirstName, nameTag},
		{"last_name", req.LastName, nameTag},
		{"sex", req.Sex, sexTag},
		{"phone", req.Phone, phoneTag},
	} {
		if f.opt.Value != nil {
			collect(verr, validate.Field(c, f.name, *f.opt.Value, f.tag))
		}
	}
	checkName(verr, "first_name", req.FirstName.Value)
	checkName(verr, "last_name", req.LastName.Value)
	if req.Weight.Value != nil {
		collect(verr, validate.Field(c, "weight", *req.Weight.Value, weightTag))
	}
	in := UpdateInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Sex:             req.Sex,
		Weight:          req.Weight,
		Phone:           req.Phone,
		Timezone:        req.Timezone,
		ReminderEnabled: req.ReminderEnabled,
	}
	if req.DOB.Set {
		in.DOB = Optional[time.Time]{Set: true}
		if req.DOB.Value != nil {
			collect(verr, validate.Field(c, "dob", *req.DOB.Value, dobTag))
			in.DOB.Value = h.parseDOB(verr, req.DOB.Value)
		}
	}
	if in.Empty() {
		verr.Add("body", "at least one field must be provided")
	}
	if err := verr.OrNil(); err != nil {
		return respondError(c, err)
	}

	rec, err := h.svc.Update(c.Request().Context(), owner, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SetReminder(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	var req reminderRequest
	if err := validate.BindStrict(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Enabled == nil {
		return respondError(c, validate.NewError("enabled", "is required"))
	}

	rec, err := h.svc.SetReminder(c.Request().Context(), owner, *req.Enabled)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) parseDOB(verr *validate.Error, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	d, err := time.Parse(DateLayout, *raw)
	if err != nil {
		if !hasField(verr, "dob") {
			verr.Add("dob", "must be a date in 2006-01-02 format")
		}
		return nil
	}
	if d.After(h.now()) {
		verr.Add("dob", "must not be in the future")
		return nil
	}
	return &d
}

func checkName(verr *validate.Error, field string, v *string) {
	if v != nil && strings.TrimSpace(*v) == "" {
		verr.Add(field, "must not be blank")
	}
}

func collect(verr *validate.Error, err error) {
	var fe *validate.Error
	if errors.As(err, &fe) {
		verr.Fields = append(verr.Fields, fe.Fields...)
	}
}

func hasField(verr *validate.Error, field string) bool {
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func ownerOf(c echo.Context) (string, error) {
	owner := auth.UserIDFromContext(c.Request().Context())
	if owner == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return owner, nil
}

func respondError(c echo.Context, err error) error {
	var (
		verr   *validate.Error
		exists *ExistsError
		store  *StorageError
	)
	switch {
	case errors.As(err, &verr):
		return apierror.Validation(c, verr)
	case errors.As(err, &exists):
		return apierror.JSON(c, http.StatusConflict, "ProfileExists", "profile already exists", nil)
	case errors.Is(err, ErrNotFound):
		return apierror.JSON(c, http.StatusNotFound, "ProfileNotFound", "profile not found", nil)
	case errors.As(err, &store):
		if errors.Is(err, context.DeadlineExceeded) {
			// RequestTimeout answers with 504.
			return err
		}
		return apierror.Server(c)
	}
	return err
}
