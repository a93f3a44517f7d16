package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized key for queue job identifiers.
	FieldJobID = "job_id"
	// FieldQueueDir is the standardized key for the queue directory path.
	FieldQueueDir = "queue_dir"
	// FieldEventType classifies a line for filtering, e.g. "job_launched".
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID ties together the lines of a single job launch.
	FieldCorrelationID = "correlation_id"
	// FieldRunID identifies one daemon process lifetime.
	FieldRunID = "run_id"
)
