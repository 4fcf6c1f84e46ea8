package couchbase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/patient"
)

const (
	patientsCollection   = "patients"
	medicalIDsCollection = "medical_ids"
	countersCollection   = "counters"
	patientSeqKey        = "patient_seq"

	// Couchbase keys are limited to 250 bytes.
	maxPlainKeyLen = 200
	casRetries     = 5
)

// medicalIDDoc reserves a medical id for one patient. Inserting it is the
// uniqueness check: Insert fails if the key already exists.
type medicalIDDoc struct {
	PatientID string `json:"patientId"`
}

// patientDoc is the stored form of a patient. Seq orders list results.
type patientDoc struct {
	*patient.Patient
	Seq uint64 `json:"seq"`
}

// Store keeps one document per patient with records embedded inline.
type Store struct {
	conn       *Connection
	patients   *gocb.Collection
	medicalIDs *gocb.Collection
	counters   *gocb.Collection
}

// NewStore builds a Store on an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:       conn,
		patients:   conn.Collection(patientsCollection),
		medicalIDs: conn.Collection(medicalIDsCollection),
		counters:   conn.Collection(countersCollection),
	}
}

func medicalIDKey(medicalID string) string {
	if len(medicalID) <= maxPlainKeyLen {
		return medicalID
	}
	sum := sha256.Sum256([]byte(medicalID))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (s *Store) reserveMedicalID(ctx context.Context, medicalID, patientID string) error {
	_, err := s.medicalIDs.Insert(medicalIDKey(medicalID), medicalIDDoc{PatientID: patientID}, &gocb.InsertOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentExists) {
		return fmt.Errorf("medical id %q: %w", medicalID, patient.ErrDuplicateMedicalID)
	}
	if err != nil {
		return fmt.Errorf("reserve medical id %q: %w", medicalID, err)
	}
	return nil
}

// releaseMedicalID removes the reservation only while it still belongs to
// patientID.
func (s *Store) releaseMedicalID(ctx context.Context, medicalID, patientID string) {
	key := medicalIDKey(medicalID)
	res, err := s.medicalIDs.Get(key, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if !errors.Is(err, gocb.ErrDocumentNotFound) {
			log.Warn().Err(err).Str("medical_id", medicalID).Msg("Failed to read medical id reservation")
		}
		return
	}
	var doc medicalIDDoc
	if err := res.Content(&doc); err != nil || doc.PatientID != patientID {
		return
	}
	if _, err := s.medicalIDs.Remove(key, &gocb.RemoveOptions{Cas: res.Cas(), Context: ctx}); err != nil {
		log.Warn().Err(err).Str("medical_id", medicalID).Msg("Failed to release medical id reservation")
	}
}

func (s *Store) Create(ctx context.Context, p *patient.Patient) error {
	doc := p.Clone()
	now := time.Now().UTC()
	doc.ID = uuid.NewString()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Records == nil {
		doc.Records = []patient.Record{}
	}

	if err := s.reserveMedicalID(ctx, doc.MedicalID, doc.ID); err != nil {
		return err
	}

	seq, err := s.counters.Binary().Increment(patientSeqKey, &gocb.IncrementOptions{
		Initial: 1,
		Delta:   1,
		Context: ctx,
	})
	if err != nil {
		s.releaseMedicalID(ctx, doc.MedicalID, doc.ID)
		return fmt.Errorf("next patient sequence: %w", err)
	}

	start := time.Now()
	stored := patientDoc{Patient: doc, Seq: seq.Content()}
	if _, err := s.patients.Insert(doc.ID, stored, &gocb.InsertOptions{Context: ctx}); err != nil {
		s.releaseMedicalID(ctx, doc.MedicalID, doc.ID)
		log.Error().
			Err(err).
			Str("doc_id", doc.ID).
			Msg("Failed to insert patient")
		return fmt.Errorf("insert patient %s: %w", doc.ID, err)
	}

	log.Debug().
		Str("doc_id", doc.ID).
		Str("collection", patientsCollection).
		Dur("duration", time.Since(start)).
		Msg("Successfully inserted patient")

	*p = *doc
	return nil
}

func (s *Store) get(ctx context.Context, id string) (*patient.Patient, gocb.Cas, error) {
	res, err := s.patients.Get(id, &gocb.GetOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return nil, 0, fmt.Errorf("patient %s: %w", id, patient.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get patient %s: %w", id, err)
	}

	var p patient.Patient
	if err := res.Content(&p); err != nil {
		return nil, 0, fmt.Errorf("decode patient %s: %w", id, err)
	}
	if p.Records == nil {
		p.Records = []patient.Record{}
	}
	return &p, res.Cas(), nil
}

func (s *Store) Get(ctx context.Context, id string) (*patient.Patient, error) {
	p, _, err := s.get(ctx, id)
	return p, err
}

// listStatement filters with CONTAINS, which matches literally.
func (s *Store) listStatement() string {
	return "SELECT p.* FROM " + s.conn.keyspace(patientsCollection) + " AS p " +
		"WHERE ($term = \"\" OR CONTAINS(LOWER(p.firstName), $term) " +
		"OR CONTAINS(LOWER(p.lastName), $term) " +
		"OR CONTAINS(LOWER(p.medicalId), $term)) " +
		"AND ($criticalOnly = false OR p.critical = true) " +
		"ORDER BY p.seq"
}

func (s *Store) List(ctx context.Context, q patient.Query) ([]*patient.Patient, error) {
	start := time.Now()
	rows, err := s.conn.cluster.Query(s.listStatement(), &gocb.QueryOptions{
		Context:         ctx,
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
		NamedParameters: map[string]interface{}{
			"term":         q.Term(),
			"criticalOnly": q.CriticalOnly,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Patient query failed")
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	out := []*patient.Patient{}
	for rows.Next() {
		var p patient.Patient
		if err := rows.Row(&p); err != nil {
			return nil, fmt.Errorf("decode patient row: %w", err)
		}
		if p.Records == nil {
			p.Records = []patient.Record{}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patient rows: %w", err)
	}

	log.Debug().
		Int("result_count", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Patients queried successfully")
	return out, nil
}

// Update writes only the demographic paths under CAS, so a concurrent
// record append can never be overwritten. Appends change the CAS but not the
// version, so a CAS mismatch with an unchanged version is retried here.
func (s *Store) Update(ctx context.Context, id string, d patient.Demographics, expectedVersion int64) (*patient.Patient, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		current, cas, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Version != expectedVersion {
			return nil, fmt.Errorf("update %s: %w", id, patient.ErrVersionConflict)
		}

		medicalIDChanged := d.MedicalID != current.MedicalID
		if medicalIDChanged {
			if err := s.reserveMedicalID(ctx, d.MedicalID, id); err != nil {
				return nil, err
			}
		}

		specs := []gocb.MutateInSpec{
			gocb.UpsertSpec("firstName", d.FirstName, nil),
			gocb.UpsertSpec("lastName", d.LastName, nil),
			gocb.UpsertSpec("dateOfBirth", d.DateOfBirth, nil),
			gocb.UpsertSpec("gender", d.Gender, nil),
			gocb.UpsertSpec("contactNumber", d.ContactNumber, nil),
			gocb.UpsertSpec("medicalId", d.MedicalID, nil),
			gocb.UpsertSpec("critical", d.Critical, nil),
			gocb.UpsertSpec("updatedAt", time.Now().UTC(), nil),
			gocb.IncrementSpec("version", 1, nil),
		}
		_, err = s.patients.MutateIn(id, specs, &gocb.MutateInOptions{Cas: cas, Context: ctx})
		if err != nil {
			if medicalIDChanged {
				s.releaseMedicalID(ctx, d.MedicalID, id)
			}
			switch {
			case errors.Is(err, gocb.ErrCasMismatch):
				log.Debug().Str("doc_id", id).Int("attempt", attempt).Msg("CAS mismatch on patient update, retrying")
				continue
			case errors.Is(err, gocb.ErrDocumentNotFound):
				return nil, fmt.Errorf("update %s: %w", id, patient.ErrNotFound)
			default:
				return nil, fmt.Errorf("update patient %s: %w", id, err)
			}
		}

		if medicalIDChanged {
			s.releaseMedicalID(ctx, current.MedicalID, id)
		}
		return s.Get(ctx, id)
	}
	return nil, fmt.Errorf("update %s: %w", id, patient.ErrVersionConflict)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	current, cas, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.patients.Remove(id, &gocb.RemoveOptions{Cas: cas, Context: ctx})
	switch {
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return fmt.Errorf("delete %s: %w", id, patient.ErrNotFound)
	case errors.Is(err, gocb.ErrCasMismatch):
		// A concurrent append or update touched the document; remove unconditionally
		// and re-read the medical id it now carries.
		current, _, err = s.get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.patients.Remove(id, &gocb.RemoveOptions{Context: ctx}); err != nil {
			if errors.Is(err, gocb.ErrDocumentNotFound) {
				return fmt.Errorf("delete %s: %w", id, patient.ErrNotFound)
			}
			return fmt.Errorf("delete patient %s: %w", id, err)
		}
	case err != nil:
		return fmt.Errorf("delete patient %s: %w", id, err)
	}

	s.releaseMedicalID(ctx, current.MedicalID, id)
	return nil
}

// AppendRecord pushes onto the embedded records array in one sub-document
// mutation.
func (s *Store) AppendRecord(ctx context.Context, id string, r patient.Record) error {
	specs := []gocb.MutateInSpec{
		gocb.ArrayAppendSpec("records", r, &gocb.ArrayAppendSpecOptions{CreatePath: true}),
		gocb.UpsertSpec("updatedAt", time.Now().UTC(), nil),
	}
	_, err := s.patients.MutateIn(id, specs, &gocb.MutateInOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("append record to %s: %w", id, patient.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("append record to %s: %w", id, err)
	}
	return nil
}

// Ping checks the key-value service of the bucket.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.conn.bucket.Ping(&gocb.PingOptions{
		Context:      ctx,
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue},
	})
	if err != nil {
		return fmt.Errorf("ping couchbase: %w", err)
	}
	for service, reports := range res.Services {
		for _, report := range reports {
			if report.State != gocb.PingStateOk {
				return fmt.Errorf("couchbase service %v at %s is %v", service, report.Remote, report.State)
			}
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
