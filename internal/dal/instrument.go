package dal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/metrics"
	"stealthcompany.com/mooshu/internal/patient"
)

// instrumented records latency and a debug line for every store call.
type instrumented struct {
	next   Backend
	driver string
}

// Instrument wraps b so each call is timed under the given driver label.
func Instrument(b Backend, driver string) Backend {
	return &instrumented{next: b, driver: driver}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	d := time.Since(start)
	metrics.ObserveStoreOperation(s.driver, op, d)

	evt := log.Debug()
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Str("driver", s.driver).
		Str("operation", op).
		Dur("duration", d).
		Msg("Store call")
}

func (s *instrumented) Create(ctx context.Context, p *patient.Patient) error {
	start := time.Now()
	err := s.next.Create(ctx, p)
	s.observe("create", start, err)
	return err
}

func (s *instrumented) Get(ctx context.Context, id string) (*patient.Patient, error) {
	start := time.Now()
	p, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return p, err
}

func (s *instrumented) List(ctx context.Context, q patient.Query) ([]*patient.Patient, error) {
	start := time.Now()
	out, err := s.next.List(ctx, q)
	s.observe("list", start, err)
	return out, err
}

func (s *instrumented) Update(ctx context.Context, id string, d patient.Demographics, expectedVersion int64) (*patient.Patient, error) {
	start := time.Now()
	p, err := s.next.Update(ctx, id, d, expectedVersion)
	s.observe("update", start, err)
	return p, err
}

func (s *instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) AppendRecord(ctx context.Context, id string, r patient.Record) error {
	start := time.Now()
	err := s.next.AppendRecord(ctx, id, r)
	s.observe("append_record", start, err)
	return err
}

func (s *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumented) EnsureSchema(ctx context.Context) error {
	return s.next.EnsureSchema(ctx)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
