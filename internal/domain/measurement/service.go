package measurement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bptrack/bptrack/internal/domain/bplevel"
	"github.com/bptrack/bptrack/internal/platform/validate"
	"github.com/bptrack/bptrack/pkg/pagination"
)

const tracerName = "github.com/bptrack/bptrack/internal/domain/measurement"

// exportPageSize is the page size used when walking every measurement.
const exportPageSize = pagination.MaxPageSize

// SnapshotFunc runs fn so that all reads it issues see one consistent view
// of storage.
type SnapshotFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// Service sequences classification, persistence and the interpretation
// log for one owner's measurements. It holds no mutable state.
type Service struct {
	measurements MeasurementRepository
	logs         InterpretationLogRepository
	logger       zerolog.Logger
	tracer       trace.Tracer
	snapshot     SnapshotFunc
}

func NewService(measurements MeasurementRepository, logs InterpretationLogRepository, logger zerolog.Logger) *Service {
	return &Service{
		measurements: measurements,
		logs:         logs,
		logger:       logger.With().Str("component", "measurement").Logger(),
		tracer:       otel.Tracer(tracerName),
	}
}

// SetSnapshot attaches an optional consistent-read runner used by All.
func (s *Service) SetSnapshot(fn SnapshotFunc) {
	s.snapshot = fn
}

// Create classifies and stores a new reading for ownerID.
func (s *Service) Create(ctx context.Context, in CreateInput, ownerID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "measurement.Create")
	defer span.End()

	m := &Measurement{
		UserID:     ownerID,
		Sys:        in.Sys,
		Dia:        in.Dia,
		Pulse:      in.Pulse,
		MeasuredAt: normalizeInstant(in.MeasuredAt),
		Notes:      normalizeNotes(in.Notes),
		Level:      bplevel.Classify(in.Sys, in.Dia),
	}
	span.SetAttributes(attribute.String("bp.level", string(m.Level)))

	if err := s.measurements.Create(ctx, m); err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			return Record{}, s.fail(span, &DuplicateMeasurementError{MeasuredAt: m.MeasuredAt})
		}
		return Record{}, s.storageFailure(span, "create", ownerID, uuid.Nil, err)
	}

	s.appendInterpretation(ctx, m)
	return m.Record(), nil
}

// List returns one page of ownerID's active measurements.
func (s *Service) List(ctx context.Context, ownerID string, q ListQuery) (ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "measurement.List")
	defer span.End()

	p := pagination.Normalize(q.Page, q.PageSize)
	f := ListFilter{
		From:      q.From,
		To:        q.To,
		Levels:    q.Levels,
		Ascending: q.Sort == SortAsc,
		Limit:     p.Limit(),
		Offset:    p.Offset(),
	}

	items, total, err := s.measurements.List(ctx, ownerID, f)
	if err != nil {
		return ListResult{}, s.storageFailure(span, "list", ownerID, uuid.Nil, err)
	}
	span.SetAttributes(attribute.Int("bp.total", total))

	data := make([]Record, 0, len(items))
	for _, m := range items {
		data = append(data, m.Record())
	}
	return ListResult{Data: data, Page: p.Page, PageSize: p.PageSize, Total: total}, nil
}

// Update merges the present fields of in into the owner's active
// measurement, reclassifies it and records a new interpretation.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, ownerID string) (Record, error) {
	ctx, span := s.tracer.Start(ctx, "measurement.Update")
	defer span.End()

	existing, err := s.active(ctx, span, "update", id, ownerID)
	if err != nil {
		return Record{}, err
	}

	merged := *existing
	in.applyTo(&merged)
	if merged.Sys < merged.Dia {
		return Record{}, s.fail(span, validate.NewError("sys", "must be greater than or equal to dia"))
	}
	merged.Level = bplevel.Classify(merged.Sys, merged.Dia)
	span.SetAttributes(attribute.String("bp.level", string(merged.Level)))

	if err := s.measurements.Update(ctx, &merged); err != nil {
		switch {
		case errors.Is(err, ErrUniqueViolation):
			return Record{}, s.fail(span, &DuplicateMeasurementError{MeasuredAt: merged.MeasuredAt})
		case errors.Is(err, ErrRecordNotFound):
			return Record{}, s.fail(span, &NotFoundError{ID: id})
		}
		return Record{}, s.storageFailure(span, "update", ownerID, id, err)
	}

	s.appendInterpretation(ctx, &merged)
	return merged.Record(), nil
}

// Delete soft-deletes the owner's active measurement. Deleting twice is an
// error. Deletions are not added to the interpretation log.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	ctx, span := s.tracer.Start(ctx, "measurement.Delete")
	defer span.End()

	if _, err := s.active(ctx, span, "delete", id, ownerID); err != nil {
		return err
	}
	if err := s.measurements.SoftDelete(ctx, id, ownerID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return s.fail(span, &NotFoundError{ID: id})
		}
		return s.storageFailure(span, "delete", ownerID, id, err)
	}
	return nil
}

// All returns every active measurement of ownerID, newest first, reading
// page by page inside the snapshot runner when one is set.
func (s *Service) All(ctx context.Context, ownerID string) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "measurement.All")
	defer span.End()

	var out []Record
	walk := func(ctx context.Context) error {
		out = out[:0]
		for offset := 0; ; offset += exportPageSize {
			items, total, err := s.measurements.List(ctx, ownerID, ListFilter{Limit: exportPageSize, Offset: offset})
			if err != nil {
				return err
			}
			for _, m := range items {
				out = append(out, m.Record())
			}
			if len(items) == 0 || offset+len(items) >= total {
				return nil
			}
		}
	}

	var err error
	if s.snapshot != nil {
		err = s.snapshot(ctx, walk)
	} else {
		err = walk(ctx)
	}
	if err != nil {
		return nil, s.storageFailure(span, "export", ownerID, uuid.Nil, err)
	}
	return out, nil
}

// ListInterpretations returns ownerID's interpretation log, newest first,
// optionally for a single measurement (deleted ones included).
func (s *Service) ListInterpretations(ctx context.Context, ownerID string, measurementID *uuid.UUID, page, pageSize int) (LogListResult, error) {
	ctx, span := s.tracer.Start(ctx, "measurement.ListInterpretations")
	defer span.End()

	if measurementID != nil {
		if _, err := s.measurements.GetByID(ctx, *measurementID, ownerID); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return LogListResult{}, s.fail(span, &NotFoundError{ID: *measurementID})
			}
			return LogListResult{}, s.storageFailure(span, "list interpretations", ownerID, *measurementID, err)
		}
	}

	p := pagination.Normalize(page, pageSize)
	items, total, err := s.logs.List(ctx, ownerID, measurementID, p.Limit(), p.Offset())
	if err != nil {
		return LogListResult{}, s.storageFailure(span, "list interpretations", ownerID, uuid.Nil, err)
	}

	data := make([]LogRecord, 0, len(items))
	for _, l := range items {
		data = append(data, l.Record())
	}
	return LogListResult{Data: data, Page: p.Page, PageSize: p.PageSize, Total: total}, nil
}

// active loads the owner's measurement and rejects missing or
// soft-deleted rows.
func (s *Service) active(ctx context.Context, span trace.Span, op string, id uuid.UUID, ownerID string) (*Measurement, error) {
	m, err := s.measurements.GetByID(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, s.fail(span, &NotFoundError{ID: id})
		}
		return nil, s.storageFailure(span, op, ownerID, id, err)
	}
	if m.Deleted {
		return nil, s.fail(span, &NotFoundError{ID: id})
	}
	return m, nil
}

// appendInterpretation writes the audit entry for m. Failures are logged
// and dropped: the measurement write has already succeeded.
func (s *Service) appendInterpretation(ctx context.Context, m *Measurement) {
	entry := &InterpretationLog{
		UserID:        m.UserID,
		MeasurementID: m.ID,
		Sys:           m.Sys,
		Dia:           m.Dia,
		Pulse:         m.Pulse,
		Level:         m.Level,
		Notes:         copyString(m.Notes),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		trace.SpanFromContext(ctx).AddEvent("interpretation log write failed",
			trace.WithAttributes(attribute.String("error", err.Error())))
		s.logger.Warn().Err(err).
			Str("user_id", m.UserID).
			Str("measurement_id", m.ID.String()).
			Str("level", string(m.Level)).
			Msg("failed to write interpretation log")
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *Service) storageFailure(span trace.Span, op, ownerID string, id uuid.UUID, err error) error {
	evt := s.logger.Error().Err(err).Str("op", op).Str("user_id", ownerID)
	if id != uuid.Nil {
		evt = evt.Str("measurement_id", id.String())
	}
	evt.Msg("measurement storage failure")

	span.RecordError(err)
	return s.fail(span, &StorageError{Op: op, Err: err})
}
