package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/metrics"
	"stealthcompany.com/mooshu/internal/patient"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps a service error onto a status and error body, and counts the
// outcome for the operation.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var (
		status int
		body   ErrorResponse
		result string
	)

	switch {
	case errors.Is(err, patient.ErrDuplicateMedicalID):
		status, result = http.StatusBadRequest, metrics.ResultDuplicate
		body = ErrorResponse{Error: ErrKindDuplicateMedicalID, Message: MsgDuplicate}
	case errors.Is(err, patient.ErrNotFound):
		status, result = http.StatusNotFound, metrics.ResultNotFound
		body = ErrorResponse{Error: ErrKindNotFound, Message: MsgNotFound}
	case errors.Is(err, patient.ErrInvalid):
		status, result = http.StatusBadRequest, metrics.ResultValidationFailed
		body = ErrorResponse{Error: ErrKindValidationFailed, Message: validationMessage(err)}
	case errors.Is(err, patient.ErrVersionConflict):
		status, result = http.StatusConflict, metrics.ResultVersionConflict
		body = ErrorResponse{Error: ErrKindVersionConflict, Message: MsgConflict}
	default:
		status, result = http.StatusInternalServerError, metrics.ResultError
		body = ErrorResponse{Error: ErrKindInternal, Message: MsgInternal}
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("operation", operation).
			Msg("Patient operation failed")
	}

	if status < http.StatusInternalServerError {
		log.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("Patient request rejected")
	}

	metrics.RecordPatientOperation(operation, result)
	writeJSON(w, status, body)
}

func validationMessage(err error) string {
	var verr *patient.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return err.Error()
}

// writeInvalidJSON answers a body that could not be decoded.
func writeInvalidJSON(w http.ResponseWriter, r *http.Request, operation string, err error) {
	log.Warn().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Failed to decode JSON request")

	metrics.RecordPatientOperation(operation, metrics.ResultInvalidJSON)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrKindInvalidJSON, Message: "Invalid JSON format"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
