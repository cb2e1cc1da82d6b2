package logging

import (
	"sync"

	"respawn/internal/buffer"
)

// LogBuffer retains the most recent entries in memory.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		return
	}
	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.entries.List()
}

// Filter returns the retained entries with the given message, oldest first.
func (b *LogBuffer) Filter(message string) []LogEntry {
	var out []LogEntry
	for _, entry := range b.List() {
		if entry.Message == message {
			out = append(out, entry)
		}
	}
	return out
}
