package cdc

import (
	"context"
	"sync"
	"time"

	"githost.dev/githost/log"
)

// Sink receives finished batches of events, already serialised.
type Sink interface {
	Write(ctx context.Context, framed []byte) error
}

// PipelineConfig tunes buffering and batching behaviour.
type PipelineConfig struct {
	MaxBufferSize int           // events held before a forced flush
	BatchSize     int           // buffered events that trigger a flush; a flush sends the whole buffer as one batch
	BatchInterval time.Duration // max time an incomplete batch waits before flushing
	MaxRetries    int
}

// DefaultPipelineConfig mirrors a reasonable single-node default.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxBufferSize: 10_000,
		BatchSize:     256,
		BatchInterval: 2 * time.Second,
		MaxRetries:    5,
	}
}

// Pipeline buffers events, batches them by size or time, transforms and
// serialises each batch, and hands it to Sink with retry and dead-letter
// fallback. One Pipeline instance serves one CDC stream.
type Pipeline struct {
	cfg        PipelineConfig
	sink       Sink
	deadLetter DeadLetterHandler
	logger     log.Logger
	metrics    *LatencyMetrics

	mu     sync.Mutex
	buffer []Event

	flush chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewPipeline constructs and starts a Pipeline's background batcher
// goroutine. Call Close to drain and stop it.
func NewPipeline(cfg PipelineConfig, sink Sink, deadLetter DeadLetterHandler, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Noop()
	}
	if deadLetter == nil {
		deadLetter = NewMemoryDeadLetterHandler()
	}
	p := &Pipeline{
		cfg:        cfg,
		sink:       sink,
		deadLetter: deadLetter,
		logger:     logger,
		metrics:    NewLatencyMetrics(1000),
		flush:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit appends ev to the buffer, triggering an immediate flush signal if
// the buffer has reached batch size or the hard buffer cap.
func (p *Pipeline) Emit(ev Event) {
	p.mu.Lock()
	p.buffer = append(p.buffer, ev)
	full := len(p.buffer) >= p.cfg.BatchSize || len(p.buffer) >= p.cfg.MaxBufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.flush <- struct{}{}:
		default:
		}
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	interval := p.cfg.BatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flushBatch()
		case <-p.flush:
			p.flushBatch()
		case <-p.done:
			p.flushBatch()
			return
		}
	}
}

func (p *Pipeline) flushBatch() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	start := time.Now()
	rows := Transform(batch)
	framed, err := Serialize(rows)
	if err != nil {
		p.logger.Error("cdc: serialize batch failed", "error", err, "count", len(batch))
		p.deadLetterAll(batch, err)
		return
	}

	ctx := context.Background()
	if err := p.writeWithRetry(ctx, framed); err != nil {
		p.logger.Error("cdc: sink write exhausted retries", "error", err, "count", len(batch))
		p.deadLetterAll(batch, err)
		return
	}
	p.metrics.Observe(time.Since(start))
}

func (p *Pipeline) writeWithRetry(ctx context.Context, framed []byte) error {
	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := p.sink.Write(ctx, framed); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(jitteredBackoff(attempt))
	}
	return lastErr
}

func (p *Pipeline) deadLetterAll(batch []Event, cause error) {
	for _, ev := range batch {
		p.deadLetter.Handle(ev, cause)
	}
}

// Close stops the batcher after flushing any buffered events.
func (p *Pipeline) Close() {
	close(p.done)
	p.wg.Wait()
}

// Metrics returns a snapshot of rolling-window flush latency.
func (p *Pipeline) Metrics() LatencySnapshot {
	return p.metrics.Snapshot()
}
