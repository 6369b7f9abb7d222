package profile

import (
	"context"
	"errors"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "profile").Logger()}
}

func (s *Service) Get(ctx context.Context, userID string) (Record, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, s.storageFailure("get", userID, err)
	}
	return p.Record(), nil
}

// Create stores the first profile of userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Record, error) {
	if _, err := s.repo.Get(ctx, userID); err == nil {
		return Record{}, &ExistsError{UserID: userID}
	} else if !errors.Is(err, ErrNotFound) {
		return Record{}, s.storageFailure("create", userID, err)
	}

	p := &Profile{
		UserID:    userID,
		FirstName: trimmed(in.FirstName),
		LastName:  trimmed(in.LastName),
		DOB:       in.DOB,
		Sex:       in.Sex,
		Weight:    in.Weight,
		Phone:     in.Phone,
		Timezone:  in.Timezone,
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			return Record{}, &ExistsError{UserID: userID}
		}
		return Record{}, s.storageFailure("create", userID, err)
	}
	s.logger.Info().Str("user_id", userID).Msg("profile created")
	return p.Record(), nil
}

// Update merges the present fields of in into the caller's profile.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (Record, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, s.storageFailure("update", userID, err)
	}

	in.FirstName.Value = trimmed(in.FirstName.Value)
	in.LastName.Value = trimmed(in.LastName.Value)
	in.applyTo(p)

	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, s.storageFailure("update", userID, err)
	}
	return p.Record(), nil
}

// SetReminder toggles the reminder preference.
func (s *Service) SetReminder(ctx context.Context, userID string, enabled bool) (Record, error) {
	return s.Update(ctx, userID, UpdateInput{ReminderEnabled: &enabled})
}

// Location returns the zone timestamps are shown in for userID: the
// profile's timezone, DefaultTimezone without a profile, or UTC when
// neither can be loaded.
func (s *Service) Location(ctx context.Context, userID string) *time.Location {
	name := DefaultTimezone
	p, err := s.repo.Get(ctx, userID)
	switch {
	case err == nil:
		name = p.Timezone
	case !errors.Is(err, ErrNotFound):
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile lookup failed, using default timezone")
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn().Err(err).Str("timezone", name).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func (s *Service) storageFailure(op, userID string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Str("user_id", userID).Msg("profile storage failure")
	return &StorageError{Op: op, Err: err}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
