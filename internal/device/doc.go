// Package device provides the device directory used to enrich telemetry.
//
// Devices are identified by the same ID they report in telemetry
// (deviceId). The directory stores descriptive metadata only: name, type,
// location, manufacturer, model and free-form attributes. Live readings are
// telemetry, not device state, and are never written here.
//
// The Registry wraps a Repository with an in-memory cache and implements
// the pipeline's enrich source: Enrich returns the directory entry for a
// record's device as flat fields.
package device
