package measurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository implementations wrap these so the service can tell a
// constraint conflict or a missing row apart from any other failure.
var (
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrRecordNotFound  = errors.New("record not found")
)

// DuplicateMeasurementError is returned when the owner already has an
// active measurement at MeasuredAt.
type DuplicateMeasurementError struct {
	MeasuredAt time.Time
}

func (e *DuplicateMeasurementError) Error() string {
	return fmt.Sprintf("measurement already exists for timestamp: %s", e.MeasuredAt.Format(time.RFC3339Nano))
}

// NotFoundError is returned when no active measurement with ID belongs to
// the caller. Soft-deleted measurements are reported the same way.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("measurement not found: %s", e.ID)
}

// StorageError wraps any other persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("measurement %s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
