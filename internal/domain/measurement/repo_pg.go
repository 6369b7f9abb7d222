package measurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bptrack/bptrack/internal/platform/db"
)

const pgUniqueViolation = "23505"

// mapPGError translates pgx failures into the repository sentinels.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrRecordNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewMeasurementRepoPG(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const measurementCols = `id, user_id, sys, dia, pulse, measured_at, notes, level::text,
	deleted, created_at, updated_at`

func (r *measurementRepoPG) scanMeasurement(row pgx.Row) (*Measurement, error) {
	var m Measurement
	var level string
	err := row.Scan(&m.ID, &m.UserID, &m.Sys, &m.Dia, &m.Pulse, &m.MeasuredAt,
		&m.Notes, &level, &m.Deleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := m.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("measurement %s: %w", m.ID, err)
	}
	return &m, nil
}

func (r *measurementRepoPG) Create(ctx context.Context, m *Measurement) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO measurements (id, user_id, sys, dia, pulse, measured_at, notes, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::bp_level)
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.Sys, m.Dia, m.Pulse, m.MeasuredAt, m.Notes, string(m.Level),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return mapPGError(err)
}

func (r *measurementRepoPG) GetByID(ctx context.Context, id uuid.UUID, userID string) (*Measurement, error) {
	m, err := r.scanMeasurement(r.conn(ctx).QueryRow(ctx,
		`SELECT `+measurementCols+` FROM measurements WHERE id = $1 AND user_id = $2`, id, userID))
	return m, mapPGError(err)
}

func (r *measurementRepoPG) Update(ctx context.Context, m *Measurement) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE measurements
		SET sys = $3, dia = $4, pulse = $5, measured_at = $6, notes = $7,
			level = $8::bp_level, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT deleted
		RETURNING updated_at`,
		m.ID, m.UserID, m.Sys, m.Dia, m.Pulse, m.MeasuredAt, m.Notes, string(m.Level),
	).Scan(&m.UpdatedAt)
	return mapPGError(err)
}

func (r *measurementRepoPG) SoftDelete(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE measurements SET deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT deleted`, id, userID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: measurement %s", ErrRecordNotFound, id)
	}
	return nil
}

// buildListWhere renders the shared WHERE clause for the count and page
// queries, returning it with its positional arguments.
func buildListWhere(userID string, f ListFilter) (string, []interface{}) {
	clauses := []string{"user_id = $1", "NOT deleted"}
	args := []interface{}{userID}

	if f.From != nil {
		args = append(args, *f.From)
		clauses = append(clauses, fmt.Sprintf("measured_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		clauses = append(clauses, fmt.Sprintf("measured_at <= $%d", len(args)))
	}
	if len(f.Levels) > 0 {
		levels := make([]string, len(f.Levels))
		for i, l := range f.Levels {
			levels[i] = string(l)
		}
		args = append(args, levels)
		clauses = append(clauses, fmt.Sprintf("level::text = ANY($%d)", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *measurementRepoPG) List(ctx context.Context, userID string, f ListFilter) ([]*Measurement, int, error) {
	where, args := buildListWhere(userID, f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM measurements`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapPGError(err)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := `SELECT ` + measurementCols + ` FROM measurements` + where +
		fmt.Sprintf(` ORDER BY measured_at %s, id %s LIMIT $%d OFFSET $%d`, order, order, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPGError(err)
	}
	defer rows.Close()

	var items []*Measurement
	for rows.Next() {
		m, err := r.scanMeasurement(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPGError(err)
	}
	return items, total, nil
}

type logRepoPG struct{ pool *pgxpool.Pool }

func NewInterpretationLogRepoPG(pool *pgxpool.Pool) InterpretationLogRepository {
	return &logRepoPG{pool: pool}
}

func (r *logRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const logCols = `id, user_id, measurement_id, sys, dia, pulse, level::text, notes, created_at`

func (r *logRepoPG) scanLog(row pgx.Row) (*InterpretationLog, error) {
	var l InterpretationLog
	var level string
	if err := row.Scan(&l.ID, &l.UserID, &l.MeasurementID, &l.Sys, &l.Dia, &l.Pulse,
		&level, &l.Notes, &l.CreatedAt); err != nil {
		return nil, err
	}
	if err := l.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("interpretation log %s: %w", l.ID, err)
	}
	return &l, nil
}

func (r *logRepoPG) Create(ctx context.Context, l *InterpretationLog) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO interpretation_logs (id, user_id, measurement_id, sys, dia, pulse, level, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7::bp_level, $8)
		RETURNING created_at`,
		l.ID, l.UserID, l.MeasurementID, l.Sys, l.Dia, l.Pulse, string(l.Level), l.Notes,
	).Scan(&l.CreatedAt)
	return mapPGError(err)
}

func (r *logRepoPG) List(ctx context.Context, userID string, measurementID *uuid.UUID, limit, offset int) ([]*InterpretationLog, int, error) {
	where := ` WHERE user_id = $1`
	args := []interface{}{userID}
	if measurementID != nil {
		where += ` AND measurement_id = $2`
		args = append(args, *measurementID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM interpretation_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapPGError(err)
	}

	query := `SELECT ` + logCols + ` FROM interpretation_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPGError(err)
	}
	defer rows.Close()

	var items []*InterpretationLog
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapPGError(err)
	}
	return items, total, nil
}
