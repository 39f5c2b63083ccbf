package refstore

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"githost.dev/githost/log"
)

// ProjectionEvent is one line of the read-replica projection file: one JSON
// object per ref mutation, newline-delimited.
type ProjectionEvent struct {
	Ref       string `json:"ref"`
	OldTarget string `json:"old_target,omitempty"`
	NewTarget string `json:"new_target,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// Projection asynchronously mirrors ref mutations to a JSONL sink, so read
// replicas can tail the file instead of talking to the primary store.
// Writes never block the caller: events queue on a buffered channel and a
// single background goroutine drains them in order.
type Projection struct {
	logger log.Logger
	events chan ProjectionEvent
	done   chan struct{}
	once   sync.Once
}

// NewProjection starts the background writer. bufferSize bounds how many
// unwritten events can queue; once it is full, the Callback drops each new
// event (logging a warning) instead of queueing it.
func NewProjection(w io.Writer, bufferSize int, logger log.Logger) *Projection {
	if logger == nil {
		logger = log.Noop()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	p := &Projection{
		logger: logger,
		events: make(chan ProjectionEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go p.run(w)
	return p
}

func (p *Projection) run(w io.Writer) {
	defer close(p.done)
	enc := json.NewEncoder(w)
	for ev := range p.events {
		if err := enc.Encode(ev); err != nil {
			p.logger.Error("refstore: projection write failed", "ref", ev.Ref, "error", err)
		}
	}
}

// Callback adapts Projection to the Store's UpdateCallback signature.
func (p *Projection) Callback() UpdateCallback {
	return func(_ context.Context, name string, oldTarget, newTarget string, deleted bool) {
		ev := ProjectionEvent{Ref: name, OldTarget: oldTarget, NewTarget: newTarget, Deleted: deleted}
		select {
		case p.events <- ev:
		default:
			p.logger.Warn("refstore: projection buffer full, dropping event", "ref", name)
		}
	}
}

// Close stops accepting new events and waits for the writer goroutine to
// drain the queue.
func (p *Projection) Close() error {
	p.once.Do(func() { close(p.events) })
	<-p.done
	return nil
}
