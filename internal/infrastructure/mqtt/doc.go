// Package mqtt provides MQTT client connectivity for the telemetry core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Telemetry ingress subscriptions (graylogic/telemetry/{type}/{deviceId})
//   - Publishing of pipeline streams, alerts and UI push notifications
//   - Last Will and Testament (LWT) for offline detection
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingestor.IngestJSON(ctx, payload)
//	    })
//
// TLS is required for production deployments (cfg.Broker.TLS=true).
package mqtt
