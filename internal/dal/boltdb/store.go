package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
	"stealthcompany.com/mooshu/internal/patient"
)

var (
	patientsBucket   = []byte("patients")
	medicalIDsBucket = []byte("medical_ids")
)

// envelope is the stored form; Seq preserves insertion order because bolt
// iterates keys (random UUIDs) in byte order.
type envelope struct {
	Seq     uint64           `json:"seq"`
	Patient *patient.Patient `json:"patient"`
}

// Store persists patients in a single bbolt file. Every mutation runs in one
// write transaction, and bolt allows one writer at a time.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the database at path and its buckets.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Bolt store opened")
	return s, nil
}

// EnsureSchema creates the buckets if missing.
func (s *Store) EnsureSchema(context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{patientsBucket, medicalIDsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure bolt schema: %w", err)
	}
	return nil
}

func (s *Store) Create(_ context.Context, p *patient.Patient) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		patients := tx.Bucket(patientsBucket)
		ids := tx.Bucket(medicalIDsBucket)

		if ids.Get([]byte(p.MedicalID)) != nil {
			return fmt.Errorf("medical id %q: %w", p.MedicalID, patient.ErrDuplicateMedicalID)
		}

		seq, err := patients.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		now := time.Now().UTC()
		p.ID = uuid.NewString()
		p.Version = 1
		p.CreatedAt = now
		p.UpdatedAt = now
		if p.Records == nil {
			p.Records = []patient.Record{}
		}

		if err := putEnvelope(patients, envelope{Seq: seq, Patient: p}); err != nil {
			return err
		}
		if err := ids.Put([]byte(p.MedicalID), []byte(p.ID)); err != nil {
			return fmt.Errorf("reserve medical id: %w", err)
		}
		return nil
	})
}

func (s *Store) Get(_ context.Context, id string) (*patient.Patient, error) {
	var out *patient.Patient
	err := s.db.View(func(tx *bolt.Tx) error {
		env, err := getEnvelope(tx.Bucket(patientsBucket), id)
		if err != nil {
			return err
		}
		out = env.Patient
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) List(_ context.Context, q patient.Query) ([]*patient.Patient, error) {
	var envs []envelope
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(patientsBucket).ForEach(func(k, v []byte) error {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decode patient %s: %w", k, err)
			}
			if q.Matches(env.Patient) {
				envs = append(envs, env)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	sort.Slice(envs, func(i, j int) bool { return envs[i].Seq < envs[j].Seq })
	out := make([]*patient.Patient, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Patient)
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, d patient.Demographics, expectedVersion int64) (*patient.Patient, error) {
	var out *patient.Patient
	err := s.db.Update(func(tx *bolt.Tx) error {
		patients := tx.Bucket(patientsBucket)
		ids := tx.Bucket(medicalIDsBucket)

		env, err := getEnvelope(patients, id)
		if err != nil {
			return err
		}
		p := env.Patient
		if p.Version != expectedVersion {
			return fmt.Errorf("update %s: %w", id, patient.ErrVersionConflict)
		}

		if d.MedicalID != p.MedicalID {
			if owner := ids.Get([]byte(d.MedicalID)); owner != nil && string(owner) != id {
				return fmt.Errorf("medical id %q: %w", d.MedicalID, patient.ErrDuplicateMedicalID)
			}
			if err := ids.Delete([]byte(p.MedicalID)); err != nil {
				return fmt.Errorf("release medical id: %w", err)
			}
			if err := ids.Put([]byte(d.MedicalID), []byte(id)); err != nil {
				return fmt.Errorf("reserve medical id: %w", err)
			}
		}

		p.Demographics = d
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		out = p
		return putEnvelope(patients, env)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		patients := tx.Bucket(patientsBucket)
		env, err := getEnvelope(patients, id)
		if err != nil {
			return err
		}
		if err := patients.Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete patient %s: %w", id, err)
		}
		return tx.Bucket(medicalIDsBucket).Delete([]byte(env.Patient.MedicalID))
	})
}

func (s *Store) AppendRecord(_ context.Context, id string, r patient.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		patients := tx.Bucket(patientsBucket)
		env, err := getEnvelope(patients, id)
		if err != nil {
			return err
		}
		env.Patient.Records = append(env.Patient.Records, r)
		env.Patient.UpdatedAt = time.Now().UTC()
		return putEnvelope(patients, env)
	})
}

// Ping checks that the database file is still open.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func getEnvelope(b *bolt.Bucket, id string) (envelope, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return envelope{}, fmt.Errorf("patient %s: %w", id, patient.ErrNotFound)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode patient %s: %w", id, err)
	}
	if env.Patient.Records == nil {
		env.Patient.Records = []patient.Record{}
	}
	return env, nil
}

func putEnvelope(b *bolt.Bucket, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode patient %s: %w", env.Patient.ID, err)
	}
	if err := b.Put([]byte(env.Patient.ID), raw); err != nil {
		return fmt.Errorf("put patient %s: %w", env.Patient.ID, err)
	}
	return nil
}
