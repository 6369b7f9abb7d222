package measurement

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bptrack/bptrack/internal/domain/bplevel"
)

// MaxNotesLength bounds the free-text note, in characters.
const MaxNotesLength = 255

// Measurement maps to the measurements table. UserID and Deleted are
// storage-only and never leave the package; callers receive a Record.
type Measurement struct {
	ID         uuid.UUID
	UserID     string
	Sys        int
	Dia        int
	Pulse      int
	MeasuredAt time.Time
	Notes      *string
	Level      bplevel.Level
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Record is the public view of a measurement.
type Record struct {
	ID         uuid.UUID     `json:"id"`
	Sys        int           `json:"sys"`
	Dia        int           `json:"dia"`
	Pulse      int           `json:"pulse"`
	MeasuredAt time.Time     `json:"measured_at"`
	Level      bplevel.Level `json:"level"`
	Notes      *string       `json:"notes"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Record copies the public fields of m.
func (m *Measurement) Record() Record {
	return Record{
		ID:         m.ID,
		Sys:        m.Sys,
		Dia:        m.Dia,
		Pulse:      m.Pulse,
		MeasuredAt: m.MeasuredAt,
		Level:      m.Level,
		Notes:      copyString(m.Notes),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// InterpretationLog is an append-only snapshot of a measurement's values
// and classification at the time of a create or update.
type InterpretationLog struct {
	ID            uuid.UUID
	UserID        string
	MeasurementID uuid.UUID
	Sys           int
	Dia           int
	Pulse         int
	Level         bplevel.Level
	Notes         *string
	CreatedAt     time.Time
}

// LogRecord is the public view of an interpretation log entry.
type LogRecord struct {
	ID            uuid.UUID     `json:"id"`
	MeasurementID uuid.UUID     `json:"measurement_id"`
	Sys           int           `json:"sys"`
	Dia           int           `json:"dia"`
	Pulse         int           `json:"pulse"`
	Level         bplevel.Level `json:"level"`
	Notes         *string       `json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (l *InterpretationLog) Record() LogRecord {
	return LogRecord{
		ID:            l.ID,
		MeasurementID: l.MeasurementID,
		Sys:           l.Sys,
		Dia:           l.Dia,
		Pulse:         l.Pulse,
		Level:         l.Level,
		Notes:         copyString(l.Notes),
		CreatedAt:     l.CreatedAt,
	}
}

// CreateInput is a validated new reading.
type CreateInput struct {
	Sys        int
	Dia        int
	Pulse      int
	MeasuredAt time.Time
	Notes      *string
}

// OptionalString distinguishes an absent JSON key (Set false) from an
// explicit null or string (Set true, Value nil or non-nil).
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// UpdateInput carries the fields present in a partial update. Nil pointers
// and an unset Notes leave the stored value untouched.
type UpdateInput struct {
	Sys        *int
	Dia        *int
	Pulse      *int
	MeasuredAt *time.Time
	Notes      OptionalString
}

// Empty reports whether no field is present.
func (in UpdateInput) Empty() bool {
	return in.Sys == nil && in.Dia == nil && in.Pulse == nil && in.MeasuredAt == nil && !in.Notes.Set
}

// applyTo merges the present fields into m. Classification is left to the
// caller.
func (in UpdateInput) applyTo(m *Measurement) {
	if in.Sys != nil {
		m.Sys = *in.Sys
	}
	if in.Dia != nil {
		m.Dia = *in.Dia
	}
	if in.Pulse != nil {
		m.Pulse = *in.Pulse
	}
	if in.MeasuredAt != nil {
		m.MeasuredAt = normalizeInstant(*in.MeasuredAt)
	}
	if in.Notes.Set {
		m.Notes = normalizeNotes(in.Notes.Value)
	}
}

// SortOrder orders list results by measured_at.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ListQuery selects a page of the caller's active measurements. Zero
// values take defaults: page 1, page size 20, newest first.
type ListQuery struct {
	Page     int
	PageSize int
	From     *time.Time
	To       *time.Time
	Levels   []bplevel.Level
	Sort     SortOrder
}

// ListResult is one page of records plus the total over the whole filter.
type ListResult struct {
	Data     []Record `json:"data"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Total    int      `json:"total"`
}

// LogListResult is one page of interpretation log entries.
type LogListResult struct {
	Data     []LogRecord `json:"data"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int         `json:"total"`
}

// normalizeInstant stores timestamps in UTC at the precision PostgreSQL
// keeps, so uniqueness compares the same instant the database will.
func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// normalizeNotes maps blank notes to nil.
func normalizeNotes(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
