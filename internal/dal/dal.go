// Package dal opens the patient store selected by configuration.
package dal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/config"
	"stealthcompany.com/mooshu/internal/dal/boltdb"
	"stealthcompany.com/mooshu/internal/dal/couchbase"
	"stealthcompany.com/mooshu/internal/dal/memory"
	"stealthcompany.com/mooshu/internal/dal/postgres"
	"stealthcompany.com/mooshu/internal/patient"
)

// Backend is a patient store plus the lifecycle hooks the process needs.
type Backend interface {
	patient.Store
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*boltdb.Store)(nil)
	_ Backend = (*couchbase.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to the configured store. The returned backend is already
// instrumented.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch cfg.StoreDriver {
	case config.DriverMemory:
		b = memory.New()
	case config.DriverBolt:
		b, err = boltdb.Open(cfg.BoltPath)
	case config.DriverCouchbase:
		var conn *couchbase.Connection
		conn, err = couchbase.NewConnection(ctx, couchbase.Config{
			URL:      cfg.CouchbaseURL,
			Username: cfg.CouchbaseUsername,
			Password: cfg.CouchbasePassword,
			Bucket:   cfg.CouchbaseBucket,
			Scope:    cfg.CouchbaseScope,
		})
		if err == nil {
			b = couchbase.NewStore(conn)
		}
	case config.DriverPostgres:
		pool, perr := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		err = perr
		if err == nil {
			b = postgres.NewStore(pool)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	log.Info().Str("driver", cfg.StoreDriver).Msg("Patient store opened")
	return Instrument(b, cfg.StoreDriver), nil
}
