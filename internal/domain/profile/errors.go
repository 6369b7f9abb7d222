package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the caller has no profile.
	ErrNotFound = errors.New("profile not found")
	// ErrUniqueViolation is wrapped by repositories when a profile already
	// exists for the user.
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// ExistsError is returned when creating a profile for a user who has one.
type ExistsError struct {
	UserID string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("profile already exists for user: %s", e.UserID)
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("profile %s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
