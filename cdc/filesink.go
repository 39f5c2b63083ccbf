package cdc

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// FileSink appends each serialized, framed batch directly to an
// io.Writer (typically an append-mode *os.File). It is the default Sink
// for a single-node deployment; writes are synchronized since Pipeline
// may call Write from a single background goroutine but callers sometimes
// share a FileSink across pipelines.
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileSink wraps w as a Sink.
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) Write(_ context.Context, framed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(framed); err != nil {
		return fmt.Errorf("cdc: file sink write: %w", err)
	}
	return nil
}
