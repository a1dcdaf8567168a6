// Package influxdb exports device status snapshots to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every device state
// that produces a history row in SQLite is also written as one point in
// the hvac_status measurement, so long-range trends can be charted without
// querying the local database.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	reconciler.SetSnapshotSink(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; asynchronous write
// failures are delivered to the callback registered with SetOnError.
//
// # Schema
//
// Tags: device_id, gateway_id, address, source, and building when set.
// Fields: status, mode, fan_speed, online, and current_temp / set_temp when
// known. The point timestamp is the snapshot time, not the write time.
package influxdb
