package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation results used as the "result" label of PatientOperationsTotal.
const (
	ResultSuccess          = "success"
	ResultDuplicate        = "duplicate"
	ResultNotFound         = "not_found"
	ResultValidationFailed = "validation_failed"
	ResultVersionConflict  = "version_conflict"
	ResultInvalidJSON      = "invalid_json"
	ResultError            = "error"
)

var (
	// HTTP request counter
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP request duration histogram
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// Active HTTP connections gauge
	HTTPActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	// Business logic metrics
	PatientOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_operations_total",
			Help: "Total number of patient operations by outcome",
		},
		[]string{"operation", "result"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of patient store calls in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"driver", "operation"},
	)

	PatientsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "patients_registered",
			Help: "Number of registered patients as of the last summary",
		},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)

	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordPatientOperation counts one patient operation and its outcome.
func RecordPatientOperation(operation, result string) {
	PatientOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveStoreOperation records the latency of one store call.
func ObserveStoreOperation(driver, operation string, duration time.Duration) {
	StoreOperationDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// SetPatientsRegistered updates the registered patients gauge.
func SetPatientsRegistered(total int) {
	PatientsRegistered.Set(float64(total))
}
