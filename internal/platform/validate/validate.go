// Package validate adapts go-playground/validator to echo and defines the
// ValidationError shape shared by every handler.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a validation failure over one or more fields.
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field failure.
func (e *Error) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds failures and nil otherwise.
func (e *Error) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewError builds a single-field validation error.
func NewError(field, message string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Message: message}}}
}

// Validator implements echo.Validator.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// New returns a Validator with the custom tags registered:
//
//	notfuture  a time.Time that is not after the current instant
//	timezone   an IANA zone name time.LoadLocation accepts
func New() *Validator {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	out := &Validator{v: v, now: now}
	_ = v.RegisterValidation("notfuture", out.notFuture)
	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" {
			return false
		}
		_, err := time.LoadLocation(name)
		return err == nil
	})
	return out
}

func (cv *Validator) notFuture(fl validator.FieldLevel) bool {
	switch t := fl.Field().Interface().(type) {
	case time.Time:
		return !t.After(cv.now())
	case *time.Time:
		return t == nil || !t.After(cv.now())
	}
	return false
}

// Validate runs struct validation and converts failures into *Error.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

// Var validates a single value against tag, reporting failures under field.
func (cv *Validator) Var(field string, value interface{}, tag string) error {
	err := cv.v.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Add(field, message(fe))
	}
	return out
}

// Field runs Var with the echo instance's *Validator. Without one every
// value is accepted.
func Field(c echo.Context, field string, value interface{}, tag string) error {
	cv, ok := c.Echo().Validator.(*Validator)
	if !ok {
		return nil
	}
	return cv.Var(field, value, tag)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "notfuture":
		return "must not be in the future"
	case "timezone":
		return "must be a valid IANA timezone"
	case "e164":
		return "must be an E.164 phone number, e.g. +48123123123"
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

// BindStrict decodes a JSON request body into dst, rejecting unknown
// fields and trailing data, then validates it with the echo validator.
func BindStrict(c echo.Context, dst interface{}) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewError("body", "could not be read")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return NewError("body", "must contain a single JSON object")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

func decodeError(err error) *Error {
	var typeErr *json.UnmarshalTypeError
	var timeErr *time.ParseError
	switch {
	case errors.As(err, &typeErr):
		return NewError(typeErr.Field, "has the wrong type, expected "+typeErr.Type.String())
	case errors.As(err, &timeErr):
		return NewError("body", "timestamps must be ISO 8601 / RFC 3339")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return NewError(field, "is not allowed")
	case errors.Is(err, io.EOF):
		return NewError("body", "is required")
	}
	return NewError("body", "invalid JSON")
}
