package types

type RunMode string

const (
	// ModeLocal runs everything in one process for development.
	ModeLocal RunMode = "local"
	// ModeAPI runs only the HTTP API server.
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
