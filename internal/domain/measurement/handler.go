package measurement

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bptrack/bptrack/internal/domain/bplevel"
	"github.com/bptrack/bptrack/internal/platform/apierror"
	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/validate"
	"github.com/bptrack/bptrack/pkg/pagination"
)

// LocationFunc resolves the zone an owner's export timestamps are shown in.
type LocationFunc func(ctx context.Context, ownerID string) *time.Location

type Handler struct {
	svc      *Service
	location LocationFunc
	now      func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// SetLocationResolver sets how export timestamps are localized. Without
// one, exports are rendered in UTC.
func (h *Handler) SetLocationResolver(fn LocationFunc) {
	h.location = fn
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/measurements", h.CreateMeasurement)
	api.GET("/measurements", h.ListMeasurements)
	api.GET("/measurements/export", h.ExportMeasurements)
	api.PUT("/measurements/:id", h.UpdateMeasurement)
	api.DELETE("/measurements/:id", h.DeleteMeasurement)
	api.GET("/measurements/:id/interpretations", h.ListMeasurementInterpretations)
	api.GET("/interpretations", h.ListInterpretations)
}

type createRequest struct {
	Sys        int       `json:"sys" validate:"required,gt=0,lte=32767"`
	Dia        int       `json:"dia" validate:"required,gt=0,lte=32767"`
	Pulse      int       `json:"pulse" validate:"required,gt=0,lte=32767"`
	MeasuredAt time.Time `json:"measured_at" validate:"required,notfuture"`
	Notes      *string   `json:"notes" validate:"omitempty,max=255"`
}

type updateRequest struct {
	Sys        *int           `json:"sys" validate:"omitempty,gt=0,lte=32767"`
	Dia        *int           `json:"dia" validate:"omitempty,gt=0,lte=32767"`
	Pulse      *int           `json:"pulse" validate:"omitempty,gt=0,lte=32767"`
	MeasuredAt *time.Time     `json:"measured_at" validate:"omitempty,notfuture"`
	Notes      OptionalString `json:"notes" validate:"-"`
}

func (h *Handler) CreateMeasurement(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	var req createRequest
	if err := validate.BindStrict(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Sys < req.Dia {
		return respondError(c, validate.NewError("sys", "must be greater than or equal to dia"))
	}

	rec, err := h.svc.Create(c.Request().Context(), CreateInput{
		Sys:        req.Sys,
		Dia:        req.Dia,
		Pulse:      req.Pulse,
		MeasuredAt: req.MeasuredAt,
		Notes:      req.Notes,
	}, owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListMeasurements(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}

	q, err := parseListQuery(c)
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.svc.List(c.Request().Context(), owner, q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateMeasurement(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	var req updateRequest
	if err := validate.BindStrict(c, &req); err != nil {
		return respondError(c, err)
	}
	in := UpdateInput{
		Sys:        req.Sys,
		Dia:        req.Dia,
		Pulse:      req.Pulse,
		MeasuredAt: req.MeasuredAt,
		Notes:      req.Notes,
	}
	if in.Empty() {
		return respondError(c, validate.NewError("body", "at least one field must be provided"))
	}
	if in.Notes.Value != nil && utf8.RuneCountInString(*in.Notes.Value) > MaxNotesLength {
		return respondError(c, validate.NewError("notes", "must be at most 255 characters"))
	}

	rec, err := h.svc.Update(c.Request().Context(), id, in, owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteMeasurement(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	if err := h.svc.Delete(c.Request().Context(), id, owner); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ExportMeasurements(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	records, err := h.svc.All(ctx, owner)
	if err != nil {
		return respondError(c, err)
	}

	var loc *time.Location
	if h.location != nil {
		loc = h.location(ctx, owner)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records, loc); err != nil {
		return respondError(c, err)
	}

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, `attachment; filename="`+ExportFilename(h.now())+`"`)
	hdr.Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) ListMeasurementInterpretations(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return h.listInterpretations(c, owner, &id)
}

func (h *Handler) ListInterpretations(c echo.Context) error {
	owner, err := ownerOf(c)
	if err != nil {
		return err
	}
	return h.listInterpretations(c, owner, nil)
}

func (h *Handler) listInterpretations(c echo.Context, owner string, id *uuid.UUID) error {
	p, err := pagination.FromContext(c)
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.svc.ListInterpretations(c.Request().Context(), owner, id, p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func ownerOf(c echo.Context) (string, error) {
	owner := auth.UserIDFromContext(c.Request().Context())
	if owner == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return owner, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, validate.NewError("id", "must be a UUID")
	}
	return id, nil
}

func parseListQuery(c echo.Context) (ListQuery, error) {
	p, err := pagination.FromContext(c)
	if err != nil {
		return ListQuery{}, err
	}
	q := ListQuery{Page: p.Page, PageSize: p.PageSize, Sort: SortDesc}

	verr := &validate.Error{}
	if q.From, err = parseInstant(c.QueryParam("from")); err != nil {
		verr.Add("from", "must be an ISO 8601 timestamp")
	}
	if q.To, err = parseInstant(c.QueryParam("to")); err != nil {
		verr.Add("to", "must be an ISO 8601 timestamp")
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		verr.Add("from", "must not be after to")
	}
	if raw := c.QueryParam("level"); raw != "" {
		if q.Levels, err = bplevel.ParseLevels(raw); err != nil {
			verr.Add("level", err.Error())
		}
	}
	switch s := strings.ToLower(c.QueryParam("sort")); s {
	case "", string(SortDesc):
	case string(SortAsc):
		q.Sort = SortAsc
	default:
		verr.Add("sort", "must be one of: asc desc")
	}
	if err := verr.OrNil(); err != nil {
		return ListQuery{}, err
	}
	return q, nil
}

func parseInstant(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// respondError maps service and input errors onto the API error body.
func respondError(c echo.Context, err error) error {
	var (
		verr  *validate.Error
		rerr  *pagination.RangeError
		dup   *DuplicateMeasurementError
		nf    *NotFoundError
		store *StorageError
	)
	switch {
	case errors.As(err, &verr):
		return apierror.Validation(c, verr)
	case errors.As(err, &rerr):
		return apierror.Validation(c, validate.NewError(rerr.Param, rerr.Msg))
	case errors.As(err, &dup):
		return apierror.JSON(c, http.StatusConflict, "MeasurementDuplicate",
			"measurement already exists for this timestamp",
			map[string]time.Time{"measured_at": dup.MeasuredAt})
	case errors.As(err, &nf):
		return apierror.JSON(c, http.StatusNotFound, "MeasurementNotFound",
			"measurement not found", map[string]string{"id": nf.ID.String()})
	case errors.As(err, &store):
		if errors.Is(err, context.DeadlineExceeded) {
			// RequestTimeout answers with 504.
			return err
		}
		return apierror.Server(c)
	}
	return err
}
