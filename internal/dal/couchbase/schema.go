package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const (
	indexAttempts = 10
	indexBackoff  = time.Second
)

// indexStatements are run once the collections exist.
func (s *Store) indexStatements() []string {
	ks := s.conn.keyspace(patientsCollection)
	return []string{
		"CREATE PRIMARY INDEX IF NOT EXISTS ON " + ks,
		"CREATE INDEX IF NOT EXISTS idx_patients_seq ON " + ks + "(seq)",
		"CREATE INDEX IF NOT EXISTS idx_patients_critical ON " + ks + "(critical)",
		"CREATE PRIMARY INDEX IF NOT EXISTS ON " + s.conn.keyspace(medicalIDsCollection),
	}
}

// runDDL retries while a freshly created collection is not yet visible to
// the query service.
func (s *Store) runDDL(ctx context.Context, stmt string) error {
	var err error
	for attempt := 1; attempt <= indexAttempts; attempt++ {
		var res *gocb.QueryResult
		res, err = s.conn.cluster.Query(stmt, &gocb.QueryOptions{Context: ctx})
		if err == nil {
			return res.Close()
		}
		log.Debug().Err(err).Str("statement", stmt).Int("attempt", attempt).Msg("Index statement failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(indexBackoff):
		}
	}
	return err
}

// EnsureSchema creates the scope, the collections and the query indexes.
// Everything that already exists is left alone.
func (s *Store) EnsureSchema(ctx context.Context) error {
	mgr := s.conn.bucket.Collections()
	scope := s.conn.scopeName

	if scope != "_default" {
		err := mgr.CreateScope(scope, &gocb.CreateScopeOptions{Context: ctx})
		if err != nil && !errors.Is(err, gocb.ErrScopeExists) {
			return fmt.Errorf("create scope %s: %w", scope, err)
		}
	}

	for _, name := range []string{patientsCollection, medicalIDsCollection, countersCollection} {
		err := mgr.CreateCollection(gocb.CollectionSpec{Name: name, ScopeName: scope}, &gocb.CreateCollectionOptions{Context: ctx})
		if err != nil && !errors.Is(err, gocb.ErrCollectionExists) {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	for _, stmt := range s.indexStatements() {
		start := time.Now()
		if err := s.runDDL(ctx, stmt); err != nil {
			return fmt.Errorf("run %q: %w", stmt, err)
		}
		log.Debug().Str("statement", stmt).Dur("duration", time.Since(start)).Msg("Index ensured")
	}

	log.Info().
		Str("bucket", s.conn.bucketName).
		Str("scope", scope).
		Msg("Couchbase schema ensured")
	return nil
}
