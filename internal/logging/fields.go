package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a record for filtering (e.g. pipe_created).
	FieldEventType = "event_type"
	// FieldErrorHint carries a short remediation hint for WARN and ERROR records.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
	// FieldDaemon carries the fixed daemon identifier.
	FieldDaemon = "daemon"
	// FieldPipe is the named pipe path.
	FieldPipe = "pipe"
	// FieldState is a channel server lifecycle state.
	FieldState = "state"
	// FieldCommand is the text of a received command.
	FieldCommand = "command"
	// FieldBytes is a byte count.
	FieldBytes = "bytes"
)
