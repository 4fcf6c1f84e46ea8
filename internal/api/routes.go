package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"stealthcompany.com/mooshu/internal/metrics"
)

// SetupRoutes configures the router and wraps it with CORS for the given
// origins.
func SetupRoutes(h *Handler, corsOrigins []string) http.Handler {
	r := mux.NewRouter()

	// Add middleware to all routes
	r.Use(metrics.MetricsMiddleware)

	// Patient endpoints
	r.HandleFunc("/patients", h.CreatePatient).Methods(http.MethodPost)
	r.HandleFunc("/patients", h.ListPatients).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}", h.GetPatient).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}", h.UpdatePatient).Methods(http.MethodPut)
	r.HandleFunc("/patients/{id}", h.DeletePatient).Methods(http.MethodDelete)
	r.HandleFunc("/patients/{id}/record", h.AddRecord).Methods(http.MethodPost)

	// Analytics
	r.HandleFunc("/analytics/summary", h.Summary).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if len(corsOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}
