package patient

import "context"

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks Store

// Store persists patient aggregates. Implementations must make Create's
// medicalId check and AppendRecord atomic at the storage layer.
type Store interface {
	// Create assigns ID, Version and timestamps on p and persists it.
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id string) (*Patient, error)
	// List returns matching patients in insertion order.
	List(ctx context.Context, q Query) ([]*Patient, error)
	// Update replaces the demographic fields if the stored version equals
	// expectedVersion, leaving records untouched.
	Update(ctx context.Context, id string, d Demographics, expectedVersion int64) (*Patient, error)
	Delete(ctx context.Context, id string) error
	AppendRecord(ctx context.Context, id string, r Record) error
}
