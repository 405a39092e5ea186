// Package influxdb provides InfluxDB connectivity for poweredup telemetry.
//
// It wraps influxdb-client-go v2's non-blocking write API. Points are
// batched according to batch_size and flush_interval; async write errors
// reach the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePoint("hub_status",
//	    map[string]string{"hub_id": "crane"},
//	    map[string]any{"battery_percent": 87})
package influxdb
