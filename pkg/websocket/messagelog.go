package websocket

import (
	"sync"

	"github.com/getmockd/interceptd/pkg/config"
)

// MessageLog is a bounded FIFO of recent message summaries shared by all
// connections. Once full, the oldest entry is evicted on every append.
type MessageLog struct {
	mu       sync.RWMutex
	entries  []MessageEntry
	capacity int
}

// NewMessageLog creates a log holding at most capacity entries. A
// non-positive capacity uses the configured default.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = config.DefaultMessageLogSize
	}
	return &MessageLog{capacity: capacity}
}

// Append adds an entry, evicting the oldest ones past capacity.
func (l *MessageLog) Append(e MessageEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	l.trim()
}

// SetCapacity changes the capacity, dropping the oldest entries if needed.
func (l *MessageLog) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = config.DefaultMessageLogSize
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity = capacity
	l.trim()
}

func (l *MessageLog) trim() {
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

// List returns up to limit of the most recent entries in arrival order,
// optionally restricted to one connection. A non-positive limit returns
// every matching entry.
func (l *MessageLog) List(limit int, connectionID string) []MessageEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]MessageEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if connectionID == "" || e.ConnectionID == connectionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of stored entries.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes every entry.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
