package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/retry"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Logger is the logging surface used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// compiledProcessor pairs a processor with its compiled steps.
type compiledProcessor struct {
	Processor
	steps []step
}

// Pipeline applies processors to records and dispatches them to outputs.
//
// Thread Safety: all methods are safe for concurrent use. Records are
// processed independently; no ordering is kept across records.
type Pipeline struct {
	cfg     Config
	logger  Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.RWMutex
	processors map[string]*compiledProcessor
	stats      map[string]*ProcessorStats
	outputs    map[OutputType]OutputHandler
	enrichers  map[string]Enricher

	queueMu    sync.Mutex
	queue      []*telemetry.Record
	aboveWater bool

	countMu sync.Mutex
	counts  Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records pipeline activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithOutput registers the handler for an output type.
func WithOutput(t OutputType, h OutputHandler) Option {
	return func(p *Pipeline) { p.outputs[t] = h }
}

// WithEnricher registers a named enricher for enrich transformations.
func WithEnricher(name string, e Enricher) Option {
	return func(p *Pipeline) { p.enrichers[name] = e }
}

// WithClock overrides the time source for processed timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates an empty pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:        cfg,
		logger:     noopLogger{},
		now:        time.Now,
		processors: make(map[string]*compiledProcessor),
		stats:      make(map[string]*ProcessorStats),
		outputs:    make(map[OutputType]OutputHandler),
		enrichers:  make(map[string]Enricher),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

// AddProcessor validates, compiles and registers a processor.
//
// Returns:
//   - error: ErrProcessorExists, or ErrInvalidProcessor describing the fault
func (p *Pipeline) AddProcessor(proc Processor) error {
	if proc.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProcessor)
	}
	for _, f := range proc.Filters {
		if !f.Operator.Valid() {
			return fmt.Errorf("%w: processor %s: %w: %q", ErrInvalidProcessor, proc.ID, condition.ErrUnknownOperator, f.Operator)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.processors[proc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrProcessorExists, proc.ID)
	}

	cp := &compiledProcessor{Processor: proc}
	for i, t := range proc.Transformations {
		s, err := compileTransformation(t, p.enrichers)
		if err != nil {
			return fmt.Errorf("processor %s transformation %d: %w", proc.ID, i, err)
		}
		cp.steps = append(cp.steps, s)
	}
	for _, out := range proc.Outputs {
		if _, ok := p.outputs[out.Type]; !ok {
			return fmt.Errorf("%w: processor %s: %w: %q", ErrInvalidProcessor, proc.ID, ErrNoOutputHandler, out.Type)
		}
	}

	p.processors[proc.ID] = cp
	p.stats[proc.ID] = &ProcessorStats{}
	return nil
}

// RemoveProcessor unregisters a processor.
func (p *Pipeline) RemoveProcessor(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.processors[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProcessorNotFound, id)
	}
	delete(p.processors, id)
	delete(p.stats, id)
	return nil
}

// SetActive enables or disables a processor.
func (p *Pipeline) SetActive(id string, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp, ok := p.processors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProcessorNotFound, id)
	}
	cp.Active = active
	return nil
}

// Processors returns every registered processor in execution order.
func (p *Pipeline) Processors() []Processor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Processor, 0, len(p.processors))
	for _, cp := range p.processors {
		out = append(out, cp.Processor)
	}
	slices.SortFunc(out, func(a, b Processor) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// matching returns the active processors whose filters accept rec, sorted
// by priority then ID.
func (p *Pipeline) matching(rec *telemetry.Record) []*compiledProcessor {
	fields := rec.Fields()

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*compiledProcessor
	for _, cp := range p.processors {
		if !cp.Active {
			continue
		}
		ok, err := condition.All(cp.Filters, fields)
		if err != nil {
			p.logger.Warn("processor filter error", "processor", cp.ID, "error", err)
			continue
		}
		if ok {
			out = append(out, cp)
		}
	}
	slices.SortFunc(out, func(a, b *compiledProcessor) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Process runs one record through the pipeline and its outputs.
//
// The input record is not modified; the returned record carries the final
// status (delivered or failed), attached errors and processed timestamp.
//
// Parameters:
//   - ctx: Context for cancellation; also bounds output dispatch
//   - in: A validated record
//
// Returns:
//   - *telemetry.Record: The processed copy
//   - error: The processor error that failed the record under stop/retry,
//     or telemetry.ErrInvalidTransition for a record that is not validated
func (p *Pipeline) Process(ctx context.Context, in *telemetry.Record) (*telemetry.Record, error) {
	if in.Status != telemetry.StatusValidated {
		return nil, fmt.Errorf("%w: pipeline accepts validated records, got %s", telemetry.ErrInvalidTransition, in.Status)
	}
	p.count(func(s *Stats) { s.Received++ })

	rec := in.Clone()
	procs := p.matching(rec)

	for _, cp := range procs {
		out, err := p.runWithPolicy(ctx, cp, rec)
		if err == nil {
			rec = out
			continue
		}

		if p.cfg.ErrorHandling == PolicyContinue {
			// Soft validation results survive; hard failures are discarded.
			if errors.Is(err, errSoftValidation) {
				rec = out
			}
			p.logger.Debug("processor failed, continuing", "processor", cp.ID, "record", rec.ID, "error", err)
			continue
		}

		_ = rec.MarkFailed(fmt.Sprintf("processor %s: %v", cp.ID, err))
		p.count(func(s *Stats) { s.Failed++ })
		p.metrics.PipelineRecords.WithLabelValues(string(telemetry.StatusFailed)).Inc()
		p.logger.Warn("record failed in pipeline", "processor", cp.ID, "record", rec.ID, "error", err)
		return rec, err
	}

	if err := rec.MarkProcessed(p.now()); err != nil {
		return rec, err
	}
	p.count(func(s *Stats) { s.Processed++ })

	p.dispatch(ctx, procs, rec)
	return rec, nil
}

// errSoftValidation marks a processor whose only problem was a false validate step.
var errSoftValidation = errors.New("validation check failed")

// runWithPolicy runs one processor, retrying under the retry policy.
// On error the returned record is the processor's (discardable) output.
func (p *Pipeline) runWithPolicy(ctx context.Context, cp *compiledProcessor, rec *telemetry.Record) (*telemetry.Record, error) {
	if p.cfg.ErrorHandling != PolicyRetry {
		return p.runProcessor(ctx, cp, rec)
	}

	var out *telemetry.Record
	err := retry.Do(ctx, retry.Constant(p.cfg.RetryAttempts, p.cfg.RetryDelay), func(attempt int) error {
		var runErr error
		out, runErr = p.runProcessor(ctx, cp, rec)
		if runErr != nil && attempt <= p.cfg.RetryAttempts {
			p.logger.Debug("processor failed, retrying", "processor", cp.ID, "attempt", attempt, "error", runErr)
		}
		return runErr
	})
	return out, err
}

// runProcessor applies cp's steps to a copy of rec, honouring cp.Timeout.
func (p *Pipeline) runProcessor(ctx context.Context, cp *compiledProcessor, rec *telemetry.Record) (*telemetry.Record, error) {
	start := time.Now()
	work := rec.Clone()

	runCtx := ctx
	if cp.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cp.Timeout)
		defer cancel()
	}

	type result struct {
		soft []string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if rv := recover(); rv != nil {
				r.err = fmt.Errorf("panic: %v", rv)
			}
			done <- r
		}()
		for _, s := range cp.steps {
			soft, err := s.apply(runCtx, work)
			if err != nil {
				r.err = err
				return
			}
			if soft != "" {
				r.soft = append(r.soft, soft)
			}
		}
	}()

	var err error
	select {
	case r := <-done:
		switch {
		case r.err != nil:
			err = fmt.Errorf("%w: %s: %w", ErrProcessor, cp.ID, r.err)
		case len(r.soft) > 0:
			err = fmt.Errorf("%w: %s: %w: %s", ErrProcessor, cp.ID, errSoftValidation, strings.Join(r.soft, "; "))
		}
	case <-runCtx.Done():
		// The abandoned goroutine only touches its private copy.
		work = nil
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %s after %s", ErrProcessorTimeout, cp.ID, cp.Timeout)
		}
	}

	p.observe(cp.ID, time.Since(start), err)
	return work, err
}

func (p *Pipeline) observe(id string, d time.Duration, err error) {
	result := "success"
	switch {
	case errors.Is(err, ErrProcessorTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	p.metrics.ProcessorRuns.WithLabelValues(id, result).Inc()
	p.metrics.ProcessorDuration.WithLabelValues(id).Observe(d.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stats[id]
	if !ok {
		return
	}
	st.Processed++
	if err != nil {
		st.Failed++
	}
	st.TotalLatency += d
	st.AvgLatency = st.TotalLatency / time.Duration(st.Processed)
	st.LastRun = p.now()
}

// dispatch sends rec to the union of the processors' outputs concurrently
// and settles its final status.
func (p *Pipeline) dispatch(ctx context.Context, procs []*compiledProcessor, rec *telemetry.Record) {
	var outs []Output
	seen := make(map[Output]struct{})
	for _, cp := range procs {
		for _, o := range cp.Outputs {
			if _, dup := seen[o]; dup {
				continue
			}
			seen[o] = struct{}{}
			outs = append(outs, o)
		}
	}

	if len(outs) == 0 {
		p.settle(rec, true)
		return
	}

	p.mu.RLock()
	handlers := make([]OutputHandler, len(outs))
	for i, o := range outs {
		handlers[i] = p.outputs[o.Type]
	}
	p.mu.RUnlock()

	snapshot := rec.Clone()
	errs := make([]error, len(outs))
	var g errgroup.Group
	for i, o := range outs {
		g.Go(func() error {
			errs[i] = handlers[i].Deliver(ctx, o, snapshot)
			return nil
		})
	}
	_ = g.Wait()

	anyOK := false
	for i, err := range errs {
		result := "success"
		if err != nil {
			result = "error"
			p.logger.Warn("output delivery failed",
				"output", outs[i].Type, "target", outs[i].Target, "record", rec.ID, "error", err)
		} else {
			anyOK = true
		}
		p.metrics.OutputDeliveries.WithLabelValues(string(outs[i].Type), result).Inc()
	}
	p.settle(rec, anyOK)
}

func (p *Pipeline) settle(rec *telemetry.Record, delivered bool) {
	if delivered {
		_ = rec.MarkDelivered()
		p.count(func(s *Stats) { s.Delivered++ })
		p.metrics.PipelineRecords.WithLabelValues(string(telemetry.StatusDelivered)).Inc()
		return
	}
	_ = rec.MarkFailed("all outputs failed")
	p.count(func(s *Stats) { s.Failed++ })
	p.metrics.PipelineRecords.WithLabelValues(string(telemetry.StatusFailed)).Inc()
}

func (p *Pipeline) count(fn func(*Stats)) {
	p.countMu.Lock()
	defer p.countMu.Unlock()
	fn(&p.counts)
}

// Submit queues records for processing by Run.
func (p *Pipeline) Submit(records ...*telemetry.Record) {
	p.queueMu.Lock()
	p.queue = append(p.queue, records...)
	depth := len(p.queue)
	crossed := depth >= p.cfg.QueueHighWater && !p.aboveWater
	if crossed {
		p.aboveWater = true
	}
	p.queueMu.Unlock()

	p.metrics.PipelineQueueDepth.Set(float64(depth))
	if crossed {
		p.logger.Warn("pipeline queue above high-water mark", "depth", depth, "high_water", p.cfg.QueueHighWater)
	}
}

// next removes up to n records from the head of the queue.
func (p *Pipeline) next(n int) []*telemetry.Record {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	n = min(n, len(p.queue))
	batch := make([]*telemetry.Record, n)
	copy(batch, p.queue[:n])
	clear(p.queue[:n])
	p.queue = p.queue[n:]
	if len(p.queue) < p.cfg.QueueHighWater {
		p.aboveWater = false
	}
	p.metrics.PipelineQueueDepth.Set(float64(len(p.queue)))
	return batch
}

// QueueDepth returns the number of records waiting.
func (p *Pipeline) QueueDepth() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// Drain processes up to BatchSize queued records and returns how many ran.
func (p *Pipeline) Drain(ctx context.Context) int {
	batch := p.next(p.cfg.BatchSize)
	for _, rec := range batch {
		if _, err := p.Process(ctx, rec); err != nil {
			p.logger.Debug("record did not complete pipeline", "record", rec.ID, "error", err)
		}
	}
	return len(batch)
}

// DrainAll processes queued records batch by batch until the queue is
// empty or ctx is done. It returns how many ran and how many are left.
func (p *Pipeline) DrainAll(ctx context.Context) (drained, remaining int) {
	for ctx.Err() == nil {
		n := p.Drain(ctx)
		if n == 0 {
			break
		}
		drained += n
	}
	return drained, p.QueueDepth()
}

// Run drains the queue every BatchTimeout until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Drain(ctx)
		}
	}
}

// Stats returns a snapshot of pipeline and per-processor counters.
func (p *Pipeline) Stats() Stats {
	p.countMu.Lock()
	s := p.counts
	p.countMu.Unlock()

	s.QueueDepth = p.QueueDepth()

	p.mu.RLock()
	defer p.mu.RUnlock()
	s.Processors = make(map[string]ProcessorStats, len(p.stats))
	for id, st := range p.stats {
		s.Processors[id] = *st
	}
	return s
}
