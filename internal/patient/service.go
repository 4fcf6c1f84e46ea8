package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultUpdateAttempts = 3

var tracer = otel.Tracer("stealthcompany.com/mooshu/internal/patient")

// Service applies validation and normalization before delegating to a Store.
type Service struct {
	store          Store
	now            func() time.Time
	updateAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for date-of-birth checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUpdateAttempts bounds how often an unversioned update re-merges after
// losing a race.
func WithUpdateAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.updateAttempts = n
		}
	}
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		now:            time.Now,
		updateAttempts: defaultUpdateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new patient. Records in the draft are normalized; a nil
// list becomes empty.
func (s *Service) Create(ctx context.Context, draft Draft) (_ *Patient, err error) {
	ctx, span := tracer.Start(ctx, "patient.Create",
		trace.WithAttributes(attribute.String("patient.medical_id", draft.MedicalID)))
	defer func() { endSpan(span, err) }()

	if err := ValidateDemographics(draft.Demographics, s.now()); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(draft.Records))
	for i, r := range draft.Records {
		nr, err := NormalizeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		records = append(records, nr)
	}

	p := &Patient{
		Demographics: draft.Demographics,
		Records:      records,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_id", p.ID).
		Str("medical_id", p.MedicalID).
		Msg("Patient registered")
	return p, nil
}

// Get returns a patient by ID.
func (s *Service) Get(ctx context.Context, id string) (_ *Patient, err error) {
	ctx, span := tracer.Start(ctx, "patient.Get",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer func() { endSpan(span, err) }()

	return s.store.Get(ctx, id)
}

// List returns the patients matching q in insertion order.
func (s *Service) List(ctx context.Context, q Query) (_ []*Patient, err error) {
	ctx, span := tracer.Start(ctx, "patient.List",
		trace.WithAttributes(
			attribute.String("query.search", q.Search),
			attribute.Bool("query.critical_only", q.CriticalOnly),
		))
	defer func() { endSpan(span, err) }()

	patients, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	span.SetAttributes(attribute.Int("result.count", len(patients)))
	return patients, nil
}

// Search is List with only a search term.
func (s *Service) Search(ctx context.Context, term string) ([]*Patient, error) {
	return s.List(ctx, Query{Search: term})
}

// Update merges patch onto the latest stored demographics. When the patch
// carries a version it is used as an optimistic lock; otherwise the merge is
// retried against fresh state after a lost race.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (_ *Patient, err error) {
	ctx, span := tracer.Start(ctx, "patient.Update",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer func() { endSpan(span, err) }()

	for attempt := 1; attempt <= s.updateAttempts; attempt++ {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if patch.Version != nil && *patch.Version != current.Version {
			return nil, fmt.Errorf("expected version %d, found %d: %w", *patch.Version, current.Version, ErrVersionConflict)
		}

		next := patch.Apply(current.Demographics)
		if err := ValidateDemographics(next, s.now()); err != nil {
			return nil, err
		}

		updated, err := s.store.Update(ctx, id, next, current.Version)
		if errors.Is(err, ErrVersionConflict) && patch.Version == nil {
			log.Debug().
				Str("patient_id", id).
				Int("attempt", attempt).
				Msg("Update lost a race, re-merging")
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update %s after %d attempts: %w", id, s.updateAttempts, ErrVersionConflict)
}

// Delete removes a patient and its records.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "patient.Delete",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer func() { endSpan(span, err) }()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("patient_id", id).Msg("Patient deleted")
	return nil
}

// AppendRecord normalizes r and appends it to the patient's records.
func (s *Service) AppendRecord(ctx context.Context, id string, r Record) (_ Record, err error) {
	ctx, span := tracer.Start(ctx, "patient.AppendRecord",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer func() { endSpan(span, err) }()

	nr, err := NormalizeRecord(r)
	if err != nil {
		return Record{}, err
	}
	if err := s.store.AppendRecord(ctx, id, nr); err != nil {
		return Record{}, err
	}
	return nr, nil
}

// Summary recomputes dashboard counts over the patients matching q.
func (s *Service) Summary(ctx context.Context, q Query) (_ Summary, err error) {
	ctx, span := tracer.Start(ctx, "patient.Summary")
	defer func() { endSpan(span, err) }()

	patients, err := s.store.List(ctx, q)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(patients), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
