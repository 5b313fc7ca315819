package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/retry"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Default buffer settings.
const (
	DefaultBatchSize     = 100
	DefaultBatchTimeout  = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second

	// shutdownFlushTimeout bounds the final flush when Run exits.
	shutdownFlushTimeout = 10 * time.Second
)

// Config controls batching and persist retries.
type Config struct {
	BatchSize     int
	BatchTimeout  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Stats are cumulative buffer counters.
type Stats struct {
	TotalProcessed int64                        `json:"totalProcessed"`
	Successful     int64                        `json:"successful"`
	Failed         int64                        `json:"failed"`
	ErrorRate      float64                      `json:"errorRate"` // percent of processed records lost
	Buffered       map[telemetry.RecordType]int `json:"buffered"`
}

// Buffer accumulates validated records per type and flushes them in batches.
//
// Thread Safety: all methods are safe for concurrent use.
type Buffer struct {
	cfg       Config
	persister Persister
	forwarder Forwarder
	alerts    telemetry.AlertPublisher
	logger    Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	buffers  map[telemetry.RecordType][]*telemetry.Record
	flushing map[telemetry.RecordType]bool
	stats    Stats

	// inflight tracks size-triggered flushes started from Add.
	inflight sync.WaitGroup
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithForwarder sends every flushed batch to f.
func WithForwarder(f Forwarder) BufferOption {
	return func(b *Buffer) { b.forwarder = f }
}

// WithAlerts reports lost batches through p.
func WithAlerts(p telemetry.AlertPublisher) BufferOption {
	return func(b *Buffer) { b.alerts = p }
}

// WithLogger sets the buffer logger.
func WithLogger(l Logger) BufferOption {
	return func(b *Buffer) { b.logger = l }
}

// WithMetrics records flush outcomes to m.
func WithMetrics(m *metrics.Metrics) BufferOption {
	return func(b *Buffer) { b.metrics = m }
}

// NewBuffer creates a buffer that persists through p.
//
// Parameters:
//   - cfg: Batching settings; zero values fall back to the defaults
//   - p: Storage port (may be a MultiPersister)
//   - opts: Optional forwarder, alert publisher, logger, metrics
//
// Returns:
//   - *Buffer: Buffer ready for Add; call Run to enable time-based flushing
func NewBuffer(cfg Config, p Persister, opts ...BufferOption) *Buffer {
	cfg.applyDefaults()
	b := &Buffer{
		cfg:       cfg,
		persister: p,
		alerts:    noopPublisher{},
		logger:    noopLogger{},
		buffers:   make(map[telemetry.RecordType][]*telemetry.Record),
		flushing:  make(map[telemetry.RecordType]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	return b
}

// Add appends a validated record. When its type's buffer reaches BatchSize a
// flush is started in the background.
func (b *Buffer) Add(ctx context.Context, rec *telemetry.Record) {
	b.mu.Lock()
	b.buffers[rec.Type] = append(b.buffers[rec.Type], rec)
	size := len(b.buffers[rec.Type])
	full := size >= b.cfg.BatchSize && !b.flushing[rec.Type]
	b.mu.Unlock()

	b.metrics.IngestBufferSize.WithLabelValues(string(rec.Type)).Set(float64(size))

	if full {
		flushCtx := context.WithoutCancel(ctx)
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			_, err := b.Flush(flushCtx, rec.Type)
			b.logFlushError(rec.Type, err)
		}()
	}
}

// logFlushError reports a failed size-triggered flush. Losing the race to a
// flush already running for the type is expected and only logged at debug.
func (b *Buffer) logFlushError(t telemetry.RecordType, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrFlushInProgress):
		b.logger.Debug("size-triggered flush skipped", "type", t)
	default:
		b.logger.Warn("size-triggered flush failed", "type", t, "error", err)
	}
}

// Flush persists and forwards the current contents of one type's buffer.
//
// Returns:
//   - int: Number of records flushed (0 when the buffer was empty)
//   - error: ErrFlushInProgress if another flush for the type is running,
//     ErrPersistFailed if the batch was lost
func (b *Buffer) Flush(ctx context.Context, t telemetry.RecordType) (int, error) {
	b.mu.Lock()
	if b.flushing[t] {
		b.mu.Unlock()
		b.metrics.IngestFlushes.WithLabelValues(string(t), "skipped").Inc()
		return 0, ErrFlushInProgress
	}
	n := len(b.buffers[t])
	if n == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	b.flushing[t] = true
	batch := make([]*telemetry.Record, n)
	copy(batch, b.buffers[t][:n])
	b.mu.Unlock()

	persistErr := b.persist(ctx, t, batch)

	b.mu.Lock()
	// Records added during the flush stay for the next generation.
	remaining := len(b.buffers[t]) - n
	b.buffers[t] = append([]*telemetry.Record(nil), b.buffers[t][n:]...)
	b.flushing[t] = false
	b.stats.TotalProcessed += int64(n)
	if persistErr == nil {
		b.stats.Successful += int64(n)
	} else {
		b.stats.Failed += int64(n)
	}
	b.mu.Unlock()

	b.metrics.IngestBufferSize.WithLabelValues(string(t)).Set(float64(remaining))

	if b.forwarder != nil {
		b.forwarder.Submit(batch...)
	}

	if persistErr != nil {
		b.metrics.IngestFlushes.WithLabelValues(string(t), "failed").Inc()
		b.metrics.IngestRecords.WithLabelValues(string(t), "lost").Add(float64(n))
		b.reportLoss(ctx, t, batch, persistErr)
		return n, persistErr
	}

	b.metrics.IngestFlushes.WithLabelValues(string(t), "success").Inc()
	b.metrics.IngestRecords.WithLabelValues(string(t), "persisted").Add(float64(n))
	b.logger.Debug("telemetry batch flushed", "type", t, "count", n)
	return n, nil
}

func (b *Buffer) persist(ctx context.Context, t telemetry.RecordType, batch []*telemetry.Record) error {
	if b.persister == nil {
		return nil
	}
	err := retry.Do(ctx, retry.Constant(b.cfg.RetryAttempts, b.cfg.RetryDelay), func(attempt int) error {
		err := b.persister.Persist(ctx, batch)
		if err != nil && attempt <= b.cfg.RetryAttempts {
			b.logger.Warn("persist attempt failed, retrying",
				"type", t, "attempt", attempt, "count", len(batch), "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return nil
}

func (b *Buffer) reportLoss(ctx context.Context, t telemetry.RecordType, batch []*telemetry.Record, cause error) {
	b.logger.Error("telemetry batch lost after retries",
		"type", t, "count", len(batch), "attempts", b.cfg.RetryAttempts+1, "error", cause)

	alert := telemetry.Alert{
		ID:       uuid.NewString(),
		Kind:     telemetry.AlertDataLoss,
		Severity: telemetry.SeverityHigh,
		Message:  fmt.Sprintf("%d %s records could not be stored", len(batch), t),
		Details: map[string]any{
			"type":  string(t),
			"count": len(batch),
			"error": cause.Error(),
		},
		Timestamp: time.Now(),
	}
	if err := b.alerts.PublishAlert(ctx, alert); err != nil {
		b.logger.Warn("failed to publish data loss alert", "error", err)
	}
}

// FlushAll flushes every type's buffer and returns the first error.
// A type whose flush is already in progress is skipped.
func (b *Buffer) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	types := make([]telemetry.RecordType, 0, len(b.buffers))
	for t, recs := range b.buffers {
		if len(recs) > 0 {
			types = append(types, t)
		}
	}
	b.mu.Unlock()

	var first error
	for _, t := range types {
		if _, err := b.Flush(ctx, t); err != nil && !errors.Is(err, ErrFlushInProgress) && first == nil {
			first = err
		}
	}
	return first
}

// Run flushes all buffers every BatchTimeout until ctx is cancelled, then
// performs a final flush and waits for in-flight flushes.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			defer cancel()
			b.inflight.Wait()
			if err := b.FlushAll(flushCtx); err != nil {
				b.logger.Error("final telemetry flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := b.FlushAll(ctx); err != nil {
				b.logger.Warn("scheduled telemetry flush failed", "error", err)
			}
		}
	}
}

// Wait blocks until every size-triggered flush has finished.
func (b *Buffer) Wait() {
	b.inflight.Wait()
}

// Len returns the number of records buffered for t.
func (b *Buffer) Len(t telemetry.RecordType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers[t])
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Buffered = make(map[telemetry.RecordType]int, len(b.buffers))
	for t, recs := range b.buffers {
		s.Buffered[t] = len(recs)
	}
	if s.TotalProcessed > 0 {
		s.ErrorRate = float64(s.Failed) / float64(s.TotalProcessed) * 100
	}
	return s
}
