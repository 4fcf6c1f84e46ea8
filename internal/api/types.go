package api

// Response Types
type MessageResponse struct {
	Message string `json:"message"`
}

type CreatedResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// Error kinds returned in ErrorResponse.Error.
const (
	ErrKindDuplicateMedicalID = "duplicate_medical_id"
	ErrKindNotFound           = "not_found"
	ErrKindValidationFailed   = "validation_failed"
	ErrKindVersionConflict    = "version_conflict"
	ErrKindInvalidJSON        = "invalid_json"
	ErrKindInternal           = "internal_error"
)

// Constants
const (
	MsgPatientAdded   = "Patient added successfully"
	MsgPatientDeleted = "Patient deleted successfully"
	MsgRecordAdded    = "Record added successfully"
	MsgDuplicate      = "Patient already added"
	MsgNotFound       = "Patient not found"
	MsgConflict       = "Patient was modified by another request, reload and retry"
	MsgInternal       = "Internal server error"

	// maxBodyBytes bounds request bodies.
	maxBodyBytes = 1 << 20
)
