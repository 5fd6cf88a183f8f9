package supervisor

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
)

// LogBuffer is a fixed-capacity ring of log entries. Once full, each append
// evicts the oldest entry. Entry IDs are ULIDs, so they sort in append order
// and can be used as a read cursor.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []types.LogEntry
	head    int // index of the oldest entry
	size    int
}

// NewLogBuffer creates a log buffer holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		entries: make([]types.LogEntry, max(capacity, 1)),
	}
}

// Append stores a line and returns the stored entry.
func (b *LogBuffer) Append(line string) types.LogEntry {
	entry := types.LogEntry{
		ID:   ulid.Make().String(),
		Time: time.Now(),
		Line: line,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.entries) {
		b.entries[(b.head+b.size)%len(b.entries)] = entry
		b.size++
	} else {
		b.entries[b.head] = entry
		b.head = (b.head + 1) % len(b.entries)
	}
	return entry
}

// Entries returns up to limit of the most recent entries, oldest first.
// A limit of zero or less returns everything retained.
func (b *LogBuffer) Entries(limit int) []types.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.LogEntry, n)
	for i := range n {
		out[i] = b.entries[(b.head+b.size-n+i)%len(b.entries)]
	}
	return out
}

// Lines returns up to limit of the most recent lines, oldest first.
func (b *LogBuffer) Lines(limit int) []string {
	entries := b.Entries(limit)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines
}

// Since returns the retained entries appended after the entry with the given
// ID, oldest first. An empty cursor returns everything retained.
func (b *LogBuffer) Since(cursor string) []types.LogEntry {
	all := b.Entries(0)
	if cursor == "" {
		return all
	}
	for i, e := range all {
		if e.ID > cursor {
			return all[i:]
		}
	}
	return nil
}
