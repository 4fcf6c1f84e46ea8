package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		seq            BIGSERIAL,
		id             TEXT PRIMARY KEY,
		first_name     TEXT NOT NULL,
		last_name      TEXT NOT NULL,
		date_of_birth  TEXT NOT NULL DEFAULT '',
		gender         TEXT NOT NULL DEFAULT '',
		contact_number TEXT NOT NULL DEFAULT '',
		medical_id     TEXT NOT NULL,
		critical       BOOLEAN NOT NULL DEFAULT false,
		records        JSONB NOT NULL DEFAULT '[]'::jsonb,
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL,
		CONSTRAINT patients_medical_id_key UNIQUE (medical_id)
	)`,
	`CREATE INDEX IF NOT EXISTS patients_seq_idx ON patients (seq)`,
	`CREATE INDEX IF NOT EXISTS patients_critical_idx ON patients (seq) WHERE critical`,
}

// EnsureSchema creates the patients table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
	}
	log.Info().Msg("Postgres schema ensured")
	return nil
}
