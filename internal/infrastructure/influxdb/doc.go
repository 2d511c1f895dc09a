// Package influxdb records fleet telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The telemetry
// ingestor writes device_status and device_version points and the command
// dispatcher writes a device_commands point per publish.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus("aa:bb:cc", "online", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. A nil *Client is safe to write to and does nothing.
package influxdb
