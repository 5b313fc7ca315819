package telemetry

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
)

// Validation thresholds.
const (
	// DefaultPowerTolerance is the relative power/V×I mismatch that raises a warning.
	DefaultPowerTolerance = 0.20

	// DefaultMaxFuture is how far ahead of the local clock a timestamp may be.
	DefaultMaxFuture = 60 * time.Second

	// DefaultMaxAge is how old a timestamp may be before it is flagged stale.
	DefaultMaxAge = 24 * time.Hour

	warningPenalty = 0.1
)

// envelopeFields are lifted out of the payload into Record fields.
var envelopeFields = map[string]struct{}{
	"deviceId":  {},
	"timestamp": {},
	"type":      {},
}

// ValidationResult is the outcome of validating one raw record.
// Sanitized is set only when Valid is true.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Sanitized *Record  `json:"sanitized,omitempty"`
}

// Err returns nil for a valid result, otherwise ErrValidation wrapped with
// every collected error.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(r.Errors, "; "))
}

// Rejected pairs an invalid raw record with its result.
type Rejected struct {
	Raw    map[string]any
	Result ValidationResult
}

// BatchResult partitions a batch into accepted records and rejections.
type BatchResult struct {
	Valid     []*Record
	Invalid   []Rejected
	ErrorRate float64 // percentage of invalid records, 0-100
}

// Validator checks raw records against per-type field rules.
type Validator struct {
	typeRules      map[RecordType][]FieldRule
	powerTolerance float64
	maxFuture      time.Duration
	maxAge         time.Duration
	now            func() time.Time
	metrics        *metrics.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for timestamp checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithMetrics records validation outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithRule appends an extra rule for a record type.
func WithRule(t RecordType, rule FieldRule) Option {
	return func(v *Validator) { v.typeRules[t] = append(v.typeRules[t], rule) }
}

// NewValidator creates a validator with the standard rule set.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		typeRules:      defaultTypeRules(),
		powerTolerance: DefaultPowerTolerance,
		maxFuture:      DefaultMaxFuture,
		maxAge:         DefaultMaxAge,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.metrics == nil {
		v.metrics = metrics.New()
	}
	return v
}

// Validate checks one raw record. All violations are collected.
//
// Parameters:
//   - raw: Decoded ingress object {deviceId, timestamp, type, ...payload}
//
// Returns:
//   - ValidationResult: Valid with a Sanitized record, or the list of errors
func (v *Validator) Validate(raw map[string]any) ValidationResult {
	var result ValidationResult

	if raw == nil {
		result.Errors = []string{"record is empty"}
		v.observe("unknown", result)
		return result
	}

	for _, rule := range commonRules {
		result.Errors = append(result.Errors, rule.check(raw)...)
	}

	recordType, _ := raw["type"].(string)
	for _, rule := range v.typeRules[RecordType(recordType)] {
		result.Errors = append(result.Errors, rule.check(raw)...)
	}

	if len(result.Errors) > 0 {
		v.observe(recordType, result)
		return result
	}

	ts, _ := toFloat(raw["timestamp"])
	timestamp := int64(ts)
	result.Warnings = append(result.Warnings, v.timestampWarnings(timestamp)...)
	if RecordType(recordType) == TypeEnergy {
		if w := v.powerWarning(raw); w != "" {
			result.Warnings = append(result.Warnings, w)
		}
	}

	now := v.now()
	result.Valid = true
	result.Sanitized = &Record{
		ID:        uuid.NewString(),
		DeviceID:  strings.TrimSpace(raw["deviceId"].(string)),
		Timestamp: timestamp,
		Type:      RecordType(recordType),
		Data:      sanitizePayload(raw),
		Quality: Quality{
			Score:       qualityScore(len(result.Warnings)),
			Warnings:    result.Warnings,
			ValidatedAt: now,
		},
		Status:     StatusValidated,
		ReceivedAt: now,
	}

	v.observe(recordType, result)
	return result
}

// ValidateBatch validates every record independently.
func (v *Validator) ValidateBatch(raws []map[string]any) BatchResult {
	var out BatchResult
	for _, raw := range raws {
		res := v.Validate(raw)
		if res.Valid {
			out.Valid = append(out.Valid, res.Sanitized)
			continue
		}
		out.Invalid = append(out.Invalid, Rejected{Raw: raw, Result: res})
	}
	if total := len(raws); total > 0 {
		out.ErrorRate = float64(len(out.Invalid)) / float64(total) * 100
	}
	return out
}

func (v *Validator) timestampWarnings(ms int64) []string {
	now := v.now()
	ts := time.UnixMilli(ms)
	switch {
	case ts.After(now.Add(v.maxFuture)):
		return []string{fmt.Sprintf("timestamp is %s in the future", ts.Sub(now).Round(time.Second))}
	case ts.Before(now.Add(-v.maxAge)):
		return []string{fmt.Sprintf("timestamp is older than %s", v.maxAge)}
	}
	return nil
}

// powerWarning compares reported power with voltage × current.
func (v *Validator) powerWarning(raw map[string]any) string {
	power, ok := toFloat(raw["power"])
	if !ok {
		return ""
	}
	voltage, _ := toFloat(raw["voltage"])
	current, _ := toFloat(raw["current"])

	expected := voltage * current
	if expected == 0 {
		if power == 0 {
			return ""
		}
		return fmt.Sprintf("power %.1fW reported with zero current", power)
	}

	mismatch := math.Abs(power-expected) / expected
	if mismatch > v.powerTolerance {
		return fmt.Sprintf("power mismatch: reported %.1fW, expected %.1fW (%.0f%%)", power, expected, mismatch*100)
	}
	return ""
}

func (v *Validator) observe(recordType string, res ValidationResult) {
	if recordType == "" {
		recordType = "unknown"
	}
	result := "valid"
	if !res.Valid {
		result = "invalid"
	}
	v.metrics.TelemetryValidated.WithLabelValues(recordType, result).Inc()
	if n := len(res.Warnings); n > 0 {
		v.metrics.TelemetryWarnings.WithLabelValues(recordType).Add(float64(n))
	}
}

func qualityScore(warnings int) float64 {
	return math.Max(0, 1.0-warningPenalty*float64(warnings))
}

// sanitizePayload copies payload fields, trimming strings and normalising numbers to float64.
func sanitizePayload(raw map[string]any) map[string]any {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if _, skip := envelopeFields[k]; skip {
			continue
		}
		switch t := v.(type) {
		case string:
			data[k] = strings.TrimSpace(t)
		default:
			if n, ok := toFloat(v); ok {
				data[k] = n
				continue
			}
			data[k] = cloneValue(v)
		}
	}
	return data
}
