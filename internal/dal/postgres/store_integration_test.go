//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"stealthcompany.com/mooshu/internal/dal/storetest"
	"stealthcompany.com/mooshu/internal/patient"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("mooshu"),
		tcpostgres.WithUsername("mooshu"),
		tcpostgres.WithPassword("mooshu"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn, 10, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema creation is idempotent")
	return s
}

func TestStoreConformance(t *testing.T) {
	s := startPostgres(t)
	require.NoError(t, s.Ping(context.Background()))

	storetest.Run(t, func(t *testing.T) patient.Store {
		_, err := s.pool.Exec(context.Background(), `TRUNCATE patients`)
		require.NoError(t, err)
		return s
	})
}
