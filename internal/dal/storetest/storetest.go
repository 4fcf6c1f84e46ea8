// Package storetest holds the behaviour every patient.Store backend must
// satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/mooshu/internal/patient"
)

// Factory returns an empty store for one sub-test.
type Factory func(t *testing.T) patient.Store

// Run executes the conformance cases against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create assigns identity and empty records", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")

		require.NoError(t, s.Create(context.Background(), p))
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, int64(1), p.Version)
		assert.False(t, p.CreatedAt.IsZero())

		got, err := s.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Demographics, got.Demographics)
		assert.NotNil(t, got.Records)
		assert.Empty(t, got.Records)
	})

	t.Run("duplicate medical id is rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(context.Background(), NewPatient("John", "Doe", "JD1990")))

		err := s.Create(context.Background(), NewPatient("Jane", "Roe", "JD1990"))
		require.ErrorIs(t, err, patient.ErrDuplicateMedicalID)

		all, err := s.List(context.Background(), patient.Query{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("concurrent creates with one medical id admit exactly one", func(t *testing.T) {
		s := newStore(t)
		const workers = 8

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Create(context.Background(), NewPatient(fmt.Sprintf("P%d", i), "Race", "RACE-1"))
			}(i)
		}
		wg.Wait()
		close(errs)

		var ok, dup int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, patient.ErrDuplicateMedicalID):
				dup++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dup)
	})

	t.Run("get unknown id is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, patient.ErrNotFound)
	})

	t.Run("search matches names and medical id case-insensitively", func(t *testing.T) {
		s := newStore(t)
		john := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), john))
		require.NoError(t, s.Create(context.Background(), NewPatient("Alice", "Smith", "AS2000")))

		for _, term := range []string{"jd", "JD", "Jd", "doe", "OHN"} {
			got, err := s.List(context.Background(), patient.Query{Search: term})
			require.NoError(t, err)
			require.Len(t, got, 1, "term %q", term)
			assert.Equal(t, john.ID, got[0].ID)
		}

		got, err := s.List(context.Background(), patient.Query{Search: "xyz"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.List(context.Background(), patient.Query{})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("search treats pattern characters literally", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(context.Background(), NewPatient("Ann", "Lee", "A.1")))
		require.NoError(t, s.Create(context.Background(), NewPatient("Bob", "Ray", "AB1")))

		for term, want := range map[string]int{".": 1, "a.1": 1, "%": 0, "_": 0, ".*": 0} {
			got, err := s.List(context.Background(), patient.Query{Search: term})
			require.NoError(t, err)
			assert.Len(t, got, want, "term %q", term)
		}
	})

	t.Run("search keeps surrounding spaces literal", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(context.Background(), NewPatient("John", "Doe", "JD1990")))
		require.NoError(t, s.Create(context.Background(), NewPatient("Mary", "Ann Lee", "ML1")))

		for term, want := range map[string]int{"jd ": 0, " doe": 0, "n l": 1, "   ": 2} {
			got, err := s.List(context.Background(), patient.Query{Search: term})
			require.NoError(t, err)
			assert.Len(t, got, want, "term %q", term)
		}
	})

	t.Run("storage limits surface as validation errors", func(t *testing.T) {
		s := newStore(t)
		svc := patient.NewService(s)

		longest := strings.Repeat("x", patient.MaxMedicalIDLen)
		created, err := svc.Create(context.Background(), patient.Draft{Demographics: NewPatient("John", "Doe", longest).Demographics})
		require.NoError(t, err)

		rejected := []patient.Draft{
			{Demographics: NewPatient("John", "Doe", strings.Repeat("x", 40000)).Demographics},
			{Demographics: NewPatient("Jo\x00hn", "Doe", "NUL-1").Demographics},
			{Demographics: NewPatient("John", "Doe", "NUL-2").Demographics, Records: []patient.Record{{Diagnosis: "Fl\x00u"}}},
		}
		for i, d := range rejected {
			_, err := svc.Create(context.Background(), d)
			assert.ErrorIs(t, err, patient.ErrInvalid, "draft %d", i)
		}

		_, err = svc.AppendRecord(context.Background(), created.ID, patient.Record{Medication: "\x00"})
		require.ErrorIs(t, err, patient.ErrInvalid)

		tooLong := strings.Repeat("y", patient.MaxMedicalIDLen+1)
		_, err = svc.Update(context.Background(), created.ID, patient.Patch{MedicalID: &tooLong})
		require.ErrorIs(t, err, patient.ErrInvalid)

		all, err := s.List(context.Background(), patient.Query{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Empty(t, all[0].Records)
		assert.Equal(t, longest, all[0].MedicalID)
	})

	t.Run("list preserves insertion order and filters critical", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 5; i++ {
			p := NewPatient(fmt.Sprintf("Name%d", i), "Order", fmt.Sprintf("ORD-%d", i))
			p.Critical = i%2 == 0
			require.NoError(t, s.Create(context.Background(), p))
			ids = append(ids, p.ID)
		}

		all, err := s.List(context.Background(), patient.Query{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, p := range all {
			assert.Equal(t, ids[i], p.ID)
		}

		critical, err := s.List(context.Background(), patient.Query{CriticalOnly: true})
		require.NoError(t, err)
		require.Len(t, critical, 3)
		assert.Equal(t, []string{ids[0], ids[2], ids[4]}, []string{critical[0].ID, critical[1].ID, critical[2].ID})
	})

	t.Run("append grows records in call order", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), p))

		first := patient.Record{Diagnosis: "Flu", Medication: "Rest"}
		second := patient.Record{Diagnosis: "Fracture", Admitted: true, AdmittedDays: 3}
		require.NoError(t, s.AppendRecord(context.Background(), p.ID, first))

		got, err := s.Get(context.Background(), p.ID)
		require.NoError(t, err)
		require.Equal(t, []patient.Record{first}, got.Records)

		require.NoError(t, s.AppendRecord(context.Background(), p.ID, second))
		got, err = s.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, []patient.Record{first, second}, got.Records)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("concurrent appends are all kept", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), p))

		const workers = 10
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.AppendRecord(context.Background(), p.ID, patient.Record{Diagnosis: fmt.Sprintf("d%d", i)}))
			}(i)
		}
		wg.Wait()

		got, err := s.Get(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Len(t, got.Records, workers)
	})

	t.Run("append to unknown patient is not found", func(t *testing.T) {
		s := newStore(t)
		err := s.AppendRecord(context.Background(), "00000000-0000-0000-0000-000000000000", patient.Record{})
		require.ErrorIs(t, err, patient.ErrNotFound)
	})

	t.Run("update replaces demographics and keeps records", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), p))
		rec := patient.Record{Diagnosis: "Flu"}
		require.NoError(t, s.AppendRecord(context.Background(), p.ID, rec))

		next := patient.Demographics{
			FirstName:     "Johnny",
			LastName:      "Doe",
			DateOfBirth:   "1990-01-02",
			Gender:        "Male",
			ContactNumber: "5551234",
			MedicalID:     "JD1990",
			Critical:      true,
		}
		updated, err := s.Update(context.Background(), p.ID, next, 1)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Demographics)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, []patient.Record{rec}, updated.Records)
		assert.Equal(t, p.ID, updated.ID)
	})

	t.Run("update with stale version conflicts", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), p))

		_, err := s.Update(context.Background(), p.ID, p.Demographics, 1)
		require.NoError(t, err)
		_, err = s.Update(context.Background(), p.ID, p.Demographics, 1)
		require.ErrorIs(t, err, patient.ErrVersionConflict)
	})

	t.Run("update to a taken medical id is rejected", func(t *testing.T) {
		s := newStore(t)
		a := NewPatient("John", "Doe", "JD1990")
		b := NewPatient("Alice", "Smith", "AS2000")
		require.NoError(t, s.Create(context.Background(), a))
		require.NoError(t, s.Create(context.Background(), b))

		d := b.Demographics
		d.MedicalID = "JD1990"
		_, err := s.Update(context.Background(), b.ID, d, 1)
		require.ErrorIs(t, err, patient.ErrDuplicateMedicalID)

		d.MedicalID = "AS2001"
		_, err = s.Update(context.Background(), b.ID, d, 1)
		require.NoError(t, err)

		// the released id can be registered again
		require.NoError(t, s.Create(context.Background(), NewPatient("Other", "Person", "AS2000")))
	})

	t.Run("update unknown id is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), "00000000-0000-0000-0000-000000000000", NewPatient("a", "b", "c").Demographics, 1)
		require.ErrorIs(t, err, patient.ErrNotFound)
	})

	t.Run("delete removes patient and frees medical id", func(t *testing.T) {
		s := newStore(t)
		p := NewPatient("John", "Doe", "JD1990")
		require.NoError(t, s.Create(context.Background(), p))

		require.NoError(t, s.Delete(context.Background(), p.ID))

		_, err := s.Get(context.Background(), p.ID)
		require.ErrorIs(t, err, patient.ErrNotFound)

		all, err := s.List(context.Background(), patient.Query{})
		require.NoError(t, err)
		assert.Empty(t, all)

		require.ErrorIs(t, s.Delete(context.Background(), p.ID), patient.ErrNotFound)
		require.NoError(t, s.Create(context.Background(), NewPatient("John", "Doe", "JD1990")))
	})
}

// NewPatient builds a minimal valid patient.
func NewPatient(first, last, medicalID string) *patient.Patient {
	return &patient.Patient{
		Demographics: patient.Demographics{
			FirstName:   first,
			LastName:    last,
			DateOfBirth: "1990-01-01",
			Gender:      "Male",
			MedicalID:   medicalID,
		},
	}
}
