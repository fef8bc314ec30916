package logger

// Standard structured-field names, shared so every subsystem's log lines
// line up in a table rather than inventing their own key per call site.
const (
	FieldComponent = "component"
	FieldSession   = "session_id"
	FieldClient    = "client_id"
	FieldRoad      = "road"
	FieldPlate     = "plate"
	FieldQueue     = "queue"
	FieldJobID     = "job_id"
	FieldSite      = "site_id"
	FieldSpecies   = "species"
	FieldAddress   = "address"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)
