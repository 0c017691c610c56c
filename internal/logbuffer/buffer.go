// Package logbuffer keeps a bounded, append-only log per hosted server.
package logbuffer

import (
	"sync"
	"time"

	"github.com/imyashkale/mcphost/internal/models"
)

const (
	// DefaultCapacity is the number of entries retained per server
	DefaultCapacity = 1000
	// DefaultReadLimit is used when a read asks for zero or fewer entries
	DefaultReadLimit = 100
)

// ring is a bounded circular buffer. entries grows by append until it
// reaches capacity; after that head indexes the oldest entry.
type ring struct {
	capacity int
	entries  []models.LogEntry
	head     int
	count    int
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) push(e models.LogEntry) {
	if r.count < r.capacity {
		r.entries = append(r.entries, e)
		r.count++
		return
	}
	r.entries[r.head] = e
	r.head = (r.head + 1) % r.capacity
}

// last returns the newest n entries, oldest first
func (r *ring) last(n int) []models.LogEntry {
	if n > r.count {
		n = r.count
	}
	out := make([]models.LogEntry, n)
	start := r.head + r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.entries[(start+i)%len(r.entries)]
	}
	return out
}

// Buffer stores log entries keyed by server id
type Buffer struct {
	mu       sync.Mutex
	capacity int
	logs     map[string]*ring
}

// New creates a buffer that retains at most capacity entries per server
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		logs:     make(map[string]*ring),
	}
}

// Append records a message timestamped now
func (b *Buffer) Append(serverID, level, message string) {
	b.AppendEntry(serverID, models.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
}

// AppendEntry records an entry as given, dropping the oldest entry when full
func (b *Buffer) AppendEntry(serverID string, entry models.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.logs[serverID]
	if !ok {
		r = newRing(b.capacity)
		b.logs[serverID] = r
	}
	r.push(entry)
}

// Read returns the most recent limit entries in chronological order.
// An unknown server id yields an empty slice.
func (b *Buffer) Read(serverID string, limit int) []models.LogEntry {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.logs[serverID]
	if !ok {
		return []models.LogEntry{}
	}
	return r.last(limit)
}

// Len returns the number of entries held for a server
func (b *Buffer) Len(serverID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.logs[serverID]; ok {
		return r.count
	}
	return 0
}

// Reset empties a server's log, keeping the key
func (b *Buffer) Reset(serverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs[serverID] = newRing(b.capacity)
}

// Delete forgets a server's log entirely
func (b *Buffer) Delete(serverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.logs, serverID)
}
