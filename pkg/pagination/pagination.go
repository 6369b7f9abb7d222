package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds 1-based page pagination.
type Params struct {
	Page     int
	PageSize int
}

// Normalize fills in defaults for zero or negative values and caps the
// page size at MaxPageSize.
func Normalize(page, pageSize int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}
}

// FromContext reads page and page_size from the query string. Absent
// values take defaults; present values that are not integers or fall out
// of range are rejected rather than clamped.
func FromContext(c echo.Context) (Params, error) {
	page, err := intParam(c, "page", DefaultPage, 1, 0)
	if err != nil {
		return Params{}, err
	}
	size, err := intParam(c, "page_size", DefaultPageSize, 1, MaxPageSize)
	if err != nil {
		return Params{}, err
	}
	return Params{Page: page, PageSize: size}, nil
}

// RangeError reports an invalid pagination parameter.
type RangeError struct {
	Param string
	Msg   string
}

func (e *RangeError) Error() string { return e.Param + " " + e.Msg }

func intParam(c echo.Context, name string, def, min, max int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &RangeError{Param: name, Msg: "must be an integer"}
	}
	if v < min {
		return 0, &RangeError{Param: name, Msg: fmt.Sprintf("must be at least %d", min)}
	}
	if max > 0 && v > max {
		return 0, &RangeError{Param: name, Msg: fmt.Sprintf("must be at most %d", max)}
	}
	return v, nil
}

// Limit is the SQL LIMIT for the page.
func (p Params) Limit() int { return p.PageSize }

// Offset is the SQL OFFSET for the page.
func (p Params) Offset() int { return (p.Page - 1) * p.PageSize }

// HasNext reports whether rows remain after this page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.PageSize < total
}

// TotalPages is the number of pages needed for total rows.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.PageSize <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}
