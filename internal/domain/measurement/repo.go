package measurement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bptrack/bptrack/internal/domain/bplevel"
)

// ListFilter is the storage-level form of ListQuery. Every query is also
// scoped to the owner and to non-deleted rows.
type ListFilter struct {
	From      *time.Time
	To        *time.Time
	Levels    []bplevel.Level
	Ascending bool
	Limit     int
	Offset    int
}

type MeasurementRepository interface {
	// Create inserts m, assigning ID and the created/updated timestamps.
	// A clash on (user_id, measured_at) among active rows wraps
	// ErrUniqueViolation.
	Create(ctx context.Context, m *Measurement) error
	// GetByID returns the owner's row whether or not it is soft-deleted,
	// or an error wrapping ErrRecordNotFound.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*Measurement, error)
	// Update persists the mutable fields of an active row and refreshes
	// UpdatedAt.
	Update(ctx context.Context, m *Measurement) error
	// SoftDelete flags an active row as deleted.
	SoftDelete(ctx context.Context, id uuid.UUID, userID string) error
	List(ctx context.Context, userID string, f ListFilter) ([]*Measurement, int, error)
}

type InterpretationLogRepository interface {
	Create(ctx context.Context, l *InterpretationLog) error
	// List returns the owner's entries newest first, optionally narrowed to
	// one measurement.
	List(ctx context.Context, userID string, measurementID *uuid.UUID, limit, offset int) ([]*InterpretationLog, int, error)
}
