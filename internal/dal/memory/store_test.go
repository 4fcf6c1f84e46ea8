package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/mooshu/internal/dal/storetest"
	"stealthcompany.com/mooshu/internal/patient"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) patient.Store {
		return New()
	})
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	p := storetest.NewPatient("John", "Doe", "JD1990")
	require.NoError(t, s.Create(context.Background(), p))

	got, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	got.FirstName = "Mutated"
	got.Records = append(got.Records, patient.Record{Diagnosis: "leak"})

	again, err := s.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "John", again.FirstName)
	assert.Empty(t, again.Records)
}
