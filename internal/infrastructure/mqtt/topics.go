package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the telemetry core.
const (
	// TopicPrefixTelemetry is where devices publish raw readings:
	// graylogic/telemetry/{type}/{deviceId}
	TopicPrefixTelemetry = "graylogic/telemetry"

	// TopicPrefixStream carries pipeline output re-published for other consumers.
	TopicPrefixStream = "graylogic/stream"

	// TopicPrefixCore is the base for core-originated events and alerts.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// TopicPrefixUI is the base for per-user UI topics (push delivery).
	TopicPrefixUI = "graylogic/ui"
)

// Topics provides builders for telemetry core MQTT topics.
//
//	topic := mqtt.Topics{}.Telemetry("energy", "meter-01")
//	// Returns: "graylogic/telemetry/energy/meter-01"
type Topics struct{}

// Telemetry returns the ingress topic for one device and record type.
func (Topics) Telemetry(recordType, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, recordType, deviceID)
}

// AllTelemetry returns the subscription pattern for all device telemetry.
//
// Pattern: graylogic/telemetry/+/+
func (Topics) AllTelemetry() string {
	return TopicPrefixTelemetry + "/+/+"
}

// ParseTelemetry splits an ingress topic into record type and device ID.
// ok is false when topic is not a telemetry topic.
func (Topics) ParseTelemetry(topic string) (recordType, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixTelemetry+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Stream returns the re-publish topic for a named pipeline stream.
//
// Example: graylogic/stream/energy-normalized
func (Topics) Stream(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixStream, name)
}

// CoreAlert returns the topic for system alerts.
//
// Example: graylogic/core/alert/data_validation
func (Topics) CoreAlert(kind string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, kind)
}

// AllCoreAlerts returns a pattern matching all alerts.
//
// Pattern: graylogic/core/alert/+
func (Topics) AllCoreAlerts() string {
	return TopicPrefixCore + "/alert/+"
}

// SystemStatus returns the system status topic used for online/LWT messages.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// UINotification returns the push notification topic for a user's UI clients.
//
// Example: graylogic/ui/user-42/notification
func (Topics) UINotification(userID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUI, userID)
}
