// Package influxdb provides the InfluxDB v2 time-series store for telemetry.
//
// Validated telemetry batches are written as one point per record with
// device_id and type tags. Writes are blocking so the caller learns
// whether the batch was acknowledged.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.WriteMeasurements(ctx, []influxdb.Measurement{{
//	    Name:   "energy",
//	    Tags:   map[string]string{"device_id": "meter-01"},
//	    Fields: map[string]any{"voltage": 230.0},
//	    Time:   time.Now(),
//	}})
package influxdb
