package cdc

import "sync"

// DeadLetterHandler receives events the pipeline could not deliver after
// exhausting retries.
type DeadLetterHandler interface {
	Handle(ev Event, cause error)
}

// DeadLetterEntry pairs a failed event with the error that sank it.
type DeadLetterEntry struct {
	Event Event
	Cause error
}

// MemoryDeadLetterHandler accumulates failed events in memory, for tests
// and for a single-node deployment's diagnostics endpoint.
type MemoryDeadLetterHandler struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

// NewMemoryDeadLetterHandler returns an empty handler.
func NewMemoryDeadLetterHandler() *MemoryDeadLetterHandler {
	return &MemoryDeadLetterHandler{}
}

func (h *MemoryDeadLetterHandler) Handle(ev Event, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, DeadLetterEntry{Event: ev, Cause: cause})
}

// Entries returns every dead-lettered event recorded so far.
func (h *MemoryDeadLetterHandler) Entries() []DeadLetterEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DeadLetterEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
