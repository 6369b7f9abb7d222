package profile

import "context"

type Repository interface {
	// Get returns the user's profile or an error wrapping ErrNotFound.
	Get(ctx context.Context, userID string) (*Profile, error)
	// Create inserts p and sets its timestamps. An existing profile wraps
	// ErrUniqueViolation.
	Create(ctx context.Context, p *Profile) error
	// Update replaces every mutable column and refreshes UpdatedAt.
	Update(ctx context.Context, p *Profile) error
}
