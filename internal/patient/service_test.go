package patient_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"stealthcompany.com/mooshu/internal/dal/memory"
	"stealthcompany.com/mooshu/internal/patient"
	"stealthcompany.com/mooshu/internal/patient/mocks"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }

func newService() *patient.Service {
	return patient.NewService(memory.New(), patient.WithClock(fixedNow))
}

func johnDraft() patient.Draft {
	return patient.Draft{Demographics: patient.Demographics{
		FirstName:   "John",
		LastName:    "Doe",
		DateOfBirth: "1990-01-01",
		Gender:      "Male",
		MedicalID:   "JD1990",
	}}
}

func ptr[T any](v T) *T { return &v }

func TestService_CreateAndGet(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	p, err := svc.Create(ctx, johnDraft())
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.NotNil(t, p.Records)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Demographics, got.Demographics)

	_, err = svc.Create(ctx, johnDraft())
	require.ErrorIs(t, err, patient.ErrDuplicateMedicalID)
}

func TestService_CreateValidates(t *testing.T) {
	svc := newService()

	draft := johnDraft()
	draft.FirstName = ""
	_, err := svc.Create(context.Background(), draft)
	require.ErrorIs(t, err, patient.ErrInvalid)

	draft = johnDraft()
	draft.Records = []patient.Record{{Admitted: true, AdmittedDays: -3}}
	_, err = svc.Create(context.Background(), draft)
	require.ErrorIs(t, err, patient.ErrInvalid)
	assert.Contains(t, err.Error(), "records[0]")

	all, err := svc.List(context.Background(), patient.Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_SearchAndList(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, johnDraft())
	require.NoError(t, err)

	got, err := svc.Search(ctx, "jd")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.Search(ctx, "xyz")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_AppendRecordNormalizes(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	p, err := svc.Create(ctx, johnDraft())
	require.NoError(t, err)

	stored, err := svc.AppendRecord(ctx, p.ID, patient.Record{Diagnosis: "Flu", AdmittedDays: 9, TestsDetails: "x"})
	require.NoError(t, err)
	assert.Equal(t, patient.Record{Diagnosis: "Flu"}, stored)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []patient.Record{stored}, got.Records)

	_, err = svc.AppendRecord(ctx, "missing", patient.Record{})
	require.ErrorIs(t, err, patient.ErrNotFound)
}

func TestService_UpdateMerges(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	p, err := svc.Create(ctx, johnDraft())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, p.ID, patient.Patch{ContactNumber: ptr("5550000"), Critical: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "John", updated.FirstName)
	assert.Equal(t, "5550000", updated.ContactNumber)
	assert.True(t, updated.Critical)
	assert.Equal(t, int64(2), updated.Version)

	_, err = svc.Update(ctx, p.ID, patient.Patch{FirstName: ptr("Jo"), Version: ptr(int64(1))})
	require.ErrorIs(t, err, patient.ErrVersionConflict)

	_, err = svc.Update(ctx, p.ID, patient.Patch{FirstName: ptr("Jo"), Version: ptr(int64(2))})
	require.NoError(t, err)

	_, err = svc.Update(ctx, p.ID, patient.Patch{DateOfBirth: ptr("2030-01-01")})
	require.ErrorIs(t, err, patient.ErrInvalid)

	_, err = svc.Update(ctx, "missing", patient.Patch{})
	require.ErrorIs(t, err, patient.ErrNotFound)
}

func TestService_DeleteAndSummary(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	john, err := svc.Create(ctx, johnDraft())
	require.NoError(t, err)
	_, err = svc.Create(ctx, patient.Draft{Demographics: patient.Demographics{
		FirstName: "Alice", LastName: "Smith", Gender: "Female", MedicalID: "AS2000", Critical: true,
	}})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, patient.Query{})
	require.NoError(t, err)
	assert.Equal(t, patient.Summary{Total: 2, Critical: 1, Male: 1, Female: 1}, sum)

	require.NoError(t, svc.Delete(ctx, john.ID))
	require.ErrorIs(t, svc.Delete(ctx, john.ID), patient.ErrNotFound)

	sum, err = svc.Summary(ctx, patient.Query{})
	require.NoError(t, err)
	assert.Equal(t, patient.Summary{Total: 1, Critical: 1, Female: 1}, sum)
}

func TestService_UpdateRetriesLostRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := patient.NewService(store, patient.WithClock(fixedNow))

	v1 := &patient.Patient{ID: "p1", Demographics: johnDraft().Demographics, Version: 1}
	v2 := &patient.Patient{ID: "p1", Demographics: johnDraft().Demographics, Version: 2}
	v2.Critical = true

	want := v2.Demographics
	want.FirstName = "Johnny"

	gomock.InOrder(
		store.EXPECT().Get(gomock.Any(), "p1").Return(v1, nil),
		store.EXPECT().Update(gomock.Any(), "p1", gomock.Any(), int64(1)).
			Return(nil, fmt.Errorf("update p1: %w", patient.ErrVersionConflict)),
		store.EXPECT().Get(gomock.Any(), "p1").Return(v2, nil),
		store.EXPECT().Update(gomock.Any(), "p1", want, int64(2)).
			Return(&patient.Patient{ID: "p1", Demographics: want, Version: 3}, nil),
	)

	got, err := svc.Update(context.Background(), "p1", patient.Patch{FirstName: ptr("Johnny")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.Critical, "re-merge keeps the concurrent change")
}

func TestService_UpdateGivesUpAfterAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := patient.NewService(store, patient.WithClock(fixedNow), patient.WithUpdateAttempts(2))

	current := &patient.Patient{ID: "p1", Demographics: johnDraft().Demographics, Version: 1}
	store.EXPECT().Get(gomock.Any(), "p1").Return(current, nil).Times(2)
	store.EXPECT().Update(gomock.Any(), "p1", gomock.Any(), int64(1)).
		Return(nil, patient.ErrVersionConflict).Times(2)

	_, err := svc.Update(context.Background(), "p1", patient.Patch{FirstName: ptr("Johnny")})
	require.ErrorIs(t, err, patient.ErrVersionConflict)
}

func TestService_VersionedUpdateDoesNotRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := patient.NewService(store, patient.WithClock(fixedNow))

	current := &patient.Patient{ID: "p1", Demographics: johnDraft().Demographics, Version: 4}
	store.EXPECT().Get(gomock.Any(), "p1").Return(current, nil)
	store.EXPECT().Update(gomock.Any(), "p1", gomock.Any(), int64(4)).Return(nil, patient.ErrVersionConflict)

	_, err := svc.Update(context.Background(), "p1", patient.Patch{FirstName: ptr("Johnny"), Version: ptr(int64(4))})
	require.ErrorIs(t, err, patient.ErrVersionConflict)
}

func TestService_PropagatesStoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := patient.NewService(store, patient.WithClock(fixedNow))
	ctx := context.Background()
	boom := errors.New("connection reset")

	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(boom)
	store.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, boom).Times(2)
	store.EXPECT().AppendRecord(gomock.Any(), "p1", gomock.Any()).Return(boom)
	store.EXPECT().Delete(gomock.Any(), "p1").Return(boom)

	_, err := svc.Create(ctx, johnDraft())
	assert.ErrorIs(t, err, boom)
	_, err = svc.List(ctx, patient.Query{})
	assert.ErrorIs(t, err, boom)
	_, err = svc.Summary(ctx, patient.Query{})
	assert.ErrorIs(t, err, boom)
	_, err = svc.AppendRecord(ctx, "p1", patient.Record{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, svc.Delete(ctx, "p1"), boom)
}

func TestService_ListNeverReturnsNil(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := patient.NewService(store)

	store.EXPECT().List(gomock.Any(), patient.Query{Search: "x"}).Return(nil, nil)

	got, err := svc.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
