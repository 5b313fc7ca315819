package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// Ingestor is the ingress front: validate, report rejects, buffer the rest.
type Ingestor struct {
	validator *telemetry.Validator
	buffer    *Buffer
	alerts    telemetry.AlertPublisher
	logger    Logger
}

// NewIngestor creates an ingestor feeding buf.
// alerts may be nil, in which case rejected records are only logged.
func NewIngestor(v *telemetry.Validator, buf *Buffer, alerts telemetry.AlertPublisher, logger Logger) *Ingestor {
	if alerts == nil {
		alerts = noopPublisher{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{validator: v, buffer: buf, alerts: alerts, logger: logger}
}

// Ingest validates one raw record and buffers it if valid.
//
// Returns:
//   - telemetry.ValidationResult: Full result including warnings
//   - error: telemetry.ErrValidation wrapped with the errors when rejected
func (i *Ingestor) Ingest(ctx context.Context, raw map[string]any) (telemetry.ValidationResult, error) {
	res := i.validator.Validate(raw)
	if !res.Valid {
		i.reject(ctx, raw, res)
		return res, res.Err()
	}
	i.buffer.Add(ctx, res.Sanitized)
	return res, nil
}

// IngestBatch validates each record independently and buffers the valid ones.
// One bad record never prevents the others from being accepted.
func (i *Ingestor) IngestBatch(ctx context.Context, raws []map[string]any) telemetry.BatchResult {
	res := i.validator.ValidateBatch(raws)
	for _, rej := range res.Invalid {
		i.reject(ctx, rej.Raw, rej.Result)
	}
	for _, rec := range res.Valid {
		i.buffer.Add(ctx, rec)
	}
	return res
}

// reject drops the record and raises a data_validation alert.
func (i *Ingestor) reject(ctx context.Context, raw map[string]any, res telemetry.ValidationResult) {
	deviceID, _ := raw["deviceId"].(string)
	i.logger.Warn("telemetry rejected", "device_id", deviceID, "errors", res.Errors)

	alert := telemetry.Alert{
		ID:        uuid.NewString(),
		Kind:      telemetry.AlertDataValidation,
		Severity:  telemetry.SeverityMedium,
		Message:   fmt.Sprintf("invalid telemetry from %q dropped", deviceID),
		DeviceID:  deviceID,
		Details:   map[string]any{"errors": res.Errors},
		Timestamp: time.Now(),
	}
	if err := i.alerts.PublishAlert(ctx, alert); err != nil {
		i.logger.Warn("failed to publish validation alert", "error", err)
	}
}

// HandleMQTT decodes a telemetry message from graylogic/telemetry/{type}/{deviceId}.
// Type and device ID are taken from the topic when the payload omits them.
func (i *Ingestor) HandleMQTT(topic string, payload []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: empty object", ErrInvalidPayload)
	}

	if recordType, deviceID, ok := (mqtt.Topics{}).ParseTelemetry(topic); ok {
		if _, set := raw["type"]; !set {
			raw["type"] = recordType
		}
		if _, set := raw["deviceId"]; !set {
			raw["deviceId"] = deviceID
		}
	}

	_, err := i.Ingest(context.Background(), raw)
	return err
}

// SubscribeMQTT routes every telemetry topic to HandleMQTT.
func (i *Ingestor) SubscribeMQTT(client *mqtt.Client) error {
	return client.Subscribe((mqtt.Topics{}).AllTelemetry(), client.QoS(), i.HandleMQTT)
}

// Buffer returns the underlying buffer.
func (i *Ingestor) Buffer() *Buffer {
	return i.buffer
}
