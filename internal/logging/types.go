package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one emitted record. Context carries the record's fields merged
// over the logger's base fields.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]string
}

// Field returns the named context value, or "" when absent.
func (entry LogEntry) Field(key string) string {
	if entry.Context == nil {
		return ""
	}
	return entry.Context[key]
}
