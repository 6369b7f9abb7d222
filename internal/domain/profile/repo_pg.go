package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bptrack/bptrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

const profileCols = `user_id, first_name, last_name, dob, sex, weight::float8, phone,
	timezone, reminder_enabled, created_at, updated_at`

func (r *repoPG) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.FirstName, &p.LastName, &p.DOB, &p.Sex, &p.Weight, &p.Phone,
			&p.Timezone, &p.ReminderEnabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profiles (user_id, first_name, last_name, dob, sex, weight, phone, timezone, reminder_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.UserID, p.FirstName, p.LastName, p.DOB, p.Sex, p.Weight, p.Phone, p.Timezone, p.ReminderEnabled,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapPGError(err)
}

func (r *repoPG) Update(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE profiles SET first_name = $2, last_name = $3, dob = $4, sex = $5, weight = $6,
			phone = $7, timezone = $8, reminder_enabled = $9, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at`,
		p.UserID, p.FirstName, p.LastName, p.DOB, p.Sex, p.Weight, p.Phone, p.Timezone, p.ReminderEnabled,
	).Scan(&p.UpdatedAt)
	return mapPGError(err)
}
