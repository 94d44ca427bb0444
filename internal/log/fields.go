package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Download fields
	FieldService  = "service"
	FieldURL      = "url"
	FieldFilename = "filename"
	FieldExitCode = "exit_code"

	// Path / storage fields
	FieldPath   = "path"
	FieldReason = "reason"
	FieldAge    = "age"
)
