package client

import "time"

// LogLevel classifies a dashboard log entry
type LogLevel string

const (
	LogSuccess LogLevel = "success"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// agentLogCapacity is how many entries the agent dashboard keeps
const agentLogCapacity = 10

// LogEntry is a single line of the dashboard activity log
type LogEntry struct {
	Message   string    `json:"message"`
	Type      LogLevel  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// LogBuffer keeps the most recent entries up to its capacity.
// A zero-capacity buffer discards everything.
type LogBuffer struct {
	capacity int
	entries  []LogEntry
}

// NewLogBuffer creates a buffer holding at most capacity entries
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &LogBuffer{
		capacity: capacity,
		entries:  make([]LogEntry, 0, capacity),
	}
}

// Add appends an entry, evicting the oldest when full
func (b *LogBuffer) Add(message string, level LogLevel, at time.Time) {
	if b.capacity == 0 {
		return
	}
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, LogEntry{Message: message, Type: level, Timestamp: at})
}

// Entries returns the buffered entries oldest first
func (b *LogBuffer) Entries() []LogEntry {
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *LogBuffer) Len() int {
	return len(b.entries)
}
