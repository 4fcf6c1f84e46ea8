package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"stealthcompany.com/mooshu/internal/patient"
)

// Store keeps patients in process memory. A single mutex makes every
// operation atomic, which is all the uniqueness and append guarantees need.
type Store struct {
	mu         sync.RWMutex
	patients   map[string]*patient.Patient
	medicalIDs map[string]string
	order      []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		patients:   make(map[string]*patient.Patient),
		medicalIDs: make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.medicalIDs[p.MedicalID]; taken {
		return fmt.Errorf("medical id %q: %w", p.MedicalID, patient.ErrDuplicateMedicalID)
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Records == nil {
		p.Records = []patient.Record{}
	}

	s.patients[p.ID] = p.Clone()
	s.medicalIDs[p.MedicalID] = p.ID
	s.order = append(s.order, p.ID)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, patient.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) List(_ context.Context, q patient.Query) ([]*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*patient.Patient, 0, len(s.order))
	for _, id := range s.order {
		p := s.patients[id]
		if q.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, d patient.Demographics, expectedVersion int64) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, patient.ErrNotFound)
	}
	if p.Version != expectedVersion {
		return nil, fmt.Errorf("update %s: %w", id, patient.ErrVersionConflict)
	}
	if d.MedicalID != p.MedicalID {
		if owner, taken := s.medicalIDs[d.MedicalID]; taken && owner != id {
			return nil, fmt.Errorf("medical id %q: %w", d.MedicalID, patient.ErrDuplicateMedicalID)
		}
		delete(s.medicalIDs, p.MedicalID)
		s.medicalIDs[d.MedicalID] = id
	}

	p.Demographics = d
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, patient.ErrNotFound)
	}
	delete(s.patients, id)
	delete(s.medicalIDs, p.MedicalID)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) AppendRecord(_ context.Context, id string, r patient.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return fmt.Errorf("append record to %s: %w", id, patient.ErrNotFound)
	}
	p.Records = append(p.Records, r)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
