package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/mooshu/internal/metrics"
	"stealthcompany.com/mooshu/internal/patient"
)

// PatientService is what the handlers need from the patient service.
type PatientService interface {
	Create(ctx context.Context, draft patient.Draft) (*patient.Patient, error)
	Get(ctx context.Context, id string) (*patient.Patient, error)
	List(ctx context.Context, q patient.Query) ([]*patient.Patient, error)
	Update(ctx context.Context, id string, patch patient.Patch) (*patient.Patient, error)
	Delete(ctx context.Context, id string) error
	AppendRecord(ctx context.Context, id string, r patient.Record) (patient.Record, error)
	Summary(ctx context.Context, q patient.Query) (patient.Summary, error)
}

// Handler serves the patient endpoints.
type Handler struct {
	svc  PatientService
	ping func(ctx context.Context) error
}

// NewHandler creates a Handler. ping backs the health endpoint and may be nil.
func NewHandler(svc PatientService, ping func(ctx context.Context) error) *Handler {
	return &Handler{svc: svc, ping: ping}
}

// parseQuery reads ?search= and ?critical= from the request.
func parseQuery(r *http.Request) (patient.Query, error) {
	q := patient.Query{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("critical"); raw != "" {
		critical, err := strconv.ParseBool(raw)
		if err != nil {
			return q, &patient.ValidationError{Field: "critical", Reason: "must be true or false"}
		}
		q.CriticalOnly = critical
	}
	return q, nil
}

// CreatePatient handles POST /patients
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	const op = "create"

	var draft patient.Draft
	if err := decodeBody(w, r, &draft); err != nil {
		writeInvalidJSON(w, r, op, err)
		return
	}

	p, err := h.svc.Create(r.Context(), draft)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusCreated, CreatedResponse{Message: MsgPatientAdded, ID: p.ID})
}

// ListPatients handles GET /patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	const op = "list"

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	patients, err := h.svc.List(r.Context(), q)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	log.Debug().
		Str("search", q.Search).
		Bool("critical_only", q.CriticalOnly).
		Int("result_count", len(patients)).
		Msg("Patients listed")

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, patients)
}

// GetPatient handles GET /patients/{id}
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	const op = "get"

	p, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, p)
}

// AddRecord handles POST /patients/{id}/record
func (h *Handler) AddRecord(w http.ResponseWriter, r *http.Request) {
	const op = "append_record"

	var rec patient.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeInvalidJSON(w, r, op, err)
		return
	}

	if _, err := h.svc.AppendRecord(r.Context(), mux.Vars(r)["id"], rec); err != nil {
		writeError(w, r, op, err)
		return
	}

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, MessageResponse{Message: MsgRecordAdded})
}

// UpdatePatient handles PUT /patients/{id}
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	const op = "update"

	var patch patient.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeInvalidJSON(w, r, op, err)
		return
	}

	p, err := h.svc.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, p)
}

// DeletePatient handles DELETE /patients/{id}
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	const op = "delete"

	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, op, err)
		return
	}

	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, MessageResponse{Message: MsgPatientDeleted})
}

// Summary handles GET /analytics/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	const op = "summary"

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	sum, err := h.svc.Summary(r.Context(), q)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	if q == (patient.Query{}) {
		metrics.SetPatientsRegistered(sum.Total)
	}
	metrics.RecordPatientOperation(op, metrics.ResultSuccess)
	writeJSON(w, http.StatusOK, sum)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
