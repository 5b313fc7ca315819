package pipeline

import (
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/condition"
)

// TransformType names a transformation kind.
type TransformType string

// Transformation kinds.
const (
	TransformMap       TransformType = "map"
	TransformNormalize TransformType = "normalize"
	TransformEnrich    TransformType = "enrich"
	TransformCalculate TransformType = "calculate"
	TransformValidate  TransformType = "validate"
	TransformFormat    TransformType = "format"
)

// Transformation is one step of a processor.
//
// Field is the payload key written by map, normalize, calculate and format
// (and the optional nesting key for enrich). Expression is used by map,
// calculate and validate. Lookup names the normalize table and defaults to
// Field. Source names the enricher. Template is the format text. Message is
// attached to the record when a validate expression is false.
type Transformation struct {
	Type       TransformType `json:"type" yaml:"type"`
	Field      string        `json:"field,omitempty" yaml:"field,omitempty"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
	Lookup     string        `json:"lookup,omitempty" yaml:"lookup,omitempty"`
	Source     string        `json:"source,omitempty" yaml:"source,omitempty"`
	Template   string        `json:"template,omitempty" yaml:"template,omitempty"`
	Message    string        `json:"message,omitempty" yaml:"message,omitempty"`
}

// OutputType names an output destination kind.
type OutputType string

// Output kinds.
const (
	OutputStream      OutputType = "stream"
	OutputPersistence OutputType = "persistence"
	OutputCache       OutputType = "cache"
	OutputWebhook     OutputType = "webhook"
	OutputWebSocket   OutputType = "websocket"
	OutputAlert       OutputType = "alert"
)

// Output is one destination for processed records. Target is the stream
// name, hub channel, webhook URL or alert kind depending on Type.
type Output struct {
	Type     OutputType `json:"type" yaml:"type"`
	Target   string     `json:"target,omitempty" yaml:"target,omitempty"`
	Severity string     `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Processor is a filter, an ordered list of transformations and a set of outputs.
type Processor struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Filters         []condition.Condition `json:"filters,omitempty"`
	Transformations []Transformation      `json:"transformations,omitempty"`
	Outputs         []Output              `json:"outputs,omitempty"`
	Priority        int                   `json:"priority"`
	Active          bool                  `json:"active"`
	Timeout         time.Duration         `json:"timeout,omitempty"`
}

// ProcessorStats are running counters for one processor.
type ProcessorStats struct {
	Processed    int64         `json:"processed"`
	Failed       int64         `json:"failed"`
	TotalLatency time.Duration `json:"totalLatency"`
	AvgLatency   time.Duration `json:"avgLatency"`
	LastRun      time.Time     `json:"lastRun,omitempty"`
}

// ErrorPolicy selects how processor failures are handled.
type ErrorPolicy string

// Error policies.
const (
	PolicyStop     ErrorPolicy = "stop"
	PolicyContinue ErrorPolicy = "continue"
	PolicyRetry    ErrorPolicy = "retry"
)

// Config holds pipeline-wide settings.
type Config struct {
	BatchSize      int
	BatchTimeout   time.Duration
	ErrorHandling  ErrorPolicy
	RetryAttempts  int
	RetryDelay     time.Duration
	QueueHighWater int
}

// Default pipeline settings.
const (
	DefaultBatchSize      = 50
	DefaultBatchTimeout   = time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultQueueHighWater = 10000
)

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.ErrorHandling == "" {
		c.ErrorHandling = PolicyContinue
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.QueueHighWater <= 0 {
		c.QueueHighWater = DefaultQueueHighWater
	}
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	QueueDepth int                       `json:"queueDepth"`
	Received   int64                     `json:"received"`
	Processed  int64                     `json:"processed"`
	Delivered  int64                     `json:"delivered"`
	Failed     int64                     `json:"failed"`
	Processors map[string]ProcessorStats `json:"processors"`
}
