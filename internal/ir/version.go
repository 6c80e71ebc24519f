package ir

// Version constants for the entry wire format and the engine.
const (
	// WireVersion is the log entry wire format version.
	WireVersion = "1"

	// EngineVersion is the logsync engine version.
	EngineVersion = "0.1.0"
)
