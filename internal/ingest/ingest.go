// Package ingest bulk-loads patients from a JSON array.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/metrics"
	"stealthcompany.com/mooshu/internal/patient"
)

const progressEvery = 100

// Creator registers one patient.
type Creator interface {
	Create(ctx context.Context, draft patient.Draft) (*patient.Patient, error)
}

// Result counts the outcome of an import.
type Result struct {
	Total      int `json:"total"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
	Failed     int `json:"failed"`
}

// Patients reads a JSON array of patient drafts from r and creates them in
// file order. Duplicates and invalid entries are logged and counted; only a
// malformed document or a cancelled context stops the import.
func Patients(ctx context.Context, r io.Reader, svc Creator) (Result, error) {
	var res Result

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return res, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return res, fmt.Errorf("expected a JSON array of patients, got %v", tok)
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var draft patient.Draft
		if err := dec.Decode(&draft); err != nil {
			return res, fmt.Errorf("decode patient %d: %w", res.Total+1, err)
		}
		res.Total++

		_, err := svc.Create(ctx, draft)
		switch {
		case err == nil:
			res.Stored++
			metrics.RecordPatientOperation("ingest", metrics.ResultSuccess)
		case errors.Is(err, patient.ErrDuplicateMedicalID):
			res.Duplicates++
			metrics.RecordPatientOperation("ingest", metrics.ResultDuplicate)
			log.Debug().Str("medical_id", draft.MedicalID).Msg("Skipping already registered patient")
		case errors.Is(err, patient.ErrInvalid):
			res.Invalid++
			metrics.RecordPatientOperation("ingest", metrics.ResultValidationFailed)
			log.Warn().Err(err).Int("index", res.Total-1).Msg("Skipping invalid patient")
		default:
			res.Failed++
			metrics.RecordPatientOperation("ingest", metrics.ResultError)
			log.Error().Err(err).Str("medical_id", draft.MedicalID).Msg("Failed to store patient")
		}

		if res.Total%progressEvery == 0 {
			log.Info().
				Int("processed", res.Total).
				Int("stored", res.Stored).
				Msg("Progress update")
		}
	}

	if _, err := dec.Token(); err != nil {
		return res, fmt.Errorf("read closing token: %w", err)
	}

	log.Info().
		Int("total", res.Total).
		Int("stored", res.Stored).
		Int("duplicates", res.Duplicates).
		Int("invalid", res.Invalid).
		Int("failed", res.Failed).
		Msg("Completed ingestion")
	return res, nil
}
