package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"stealthcompany.com/mooshu/internal/patient"
)

const uniqueViolation = "23505"

const patientColumns = `id, first_name, last_name, date_of_birth, gender, contact_number,
	medical_id, critical, records, version, created_at, updated_at`

// Store keeps one row per patient. Records live in a JSONB array column so an
// append is a single UPDATE.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	var (
		p       patient.Patient
		records []byte
	)
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.ContactNumber,
		&p.MedicalID, &p.Critical, &records, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(records, &p.Records); err != nil {
		return nil, fmt.Errorf("decode records of %s: %w", p.ID, err)
	}
	if p.Records == nil {
		p.Records = []patient.Record{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) Create(ctx context.Context, p *patient.Patient) error {
	records := p.Records
	if records == nil {
		records = []patient.Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, date_of_birth, gender, contact_number,
			medical_id, critical, records, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, 1, $10, $10)`,
		id, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.ContactNumber,
		p.MedicalID, p.Critical, string(raw), now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("medical id %q: %w", p.MedicalID, patient.ErrDuplicateMedicalID)
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}

	p.ID = id
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Records = records
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*patient.Patient, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, patient.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// strpos keeps the match literal; LIKE would treat % and _ as wildcards.
const listQuery = `SELECT ` + patientColumns + ` FROM patients
	WHERE ($1::text = ''
		OR strpos(lower(first_name), $1::text) > 0
		OR strpos(lower(last_name), $1::text) > 0
		OR strpos(lower(medical_id), $1::text) > 0)
	AND (NOT $2::boolean OR critical)
	ORDER BY seq`

func (s *Store) List(ctx context.Context, q patient.Query) ([]*patient.Patient, error) {
	rows, err := s.pool.Query(ctx, listQuery, q.Term(), q.CriticalOnly)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	out := []*patient.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, d patient.Demographics, expectedVersion int64) (*patient.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE patients SET
			first_name = $2, last_name = $3, date_of_birth = $4, gender = $5,
			contact_number = $6, medical_id = $7, critical = $8,
			version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $10
		RETURNING `+patientColumns,
		id, d.FirstName, d.LastName, d.DateOfBirth, d.Gender,
		d.ContactNumber, d.MedicalID, d.Critical,
		time.Now().UTC(), expectedVersion,
	)
	p, err := scanPatient(row)
	switch {
	case err == nil:
		return p, nil
	case isUniqueViolation(err):
		return nil, fmt.Errorf("medical id %q: %w", d.MedicalID, patient.ErrDuplicateMedicalID)
	case errors.Is(err, pgx.ErrNoRows):
		// Either the row is gone or its version moved on.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check patient %s: %w", id, err)
		}
		if !exists {
			return nil, fmt.Errorf("update %s: %w", id, patient.ErrNotFound)
		}
		return nil, fmt.Errorf("update %s: %w", id, patient.ErrVersionConflict)
	default:
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", id, patient.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendRecord(ctx context.Context, id string, r patient.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE patients
		SET records = records || jsonb_build_array($2::jsonb), updated_at = $3
		WHERE id = $1`,
		id, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append record to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append record to %s: %w", id, patient.ErrNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
