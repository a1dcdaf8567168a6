package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/hvac-link-core/internal/device"
)

// MeasurementStatus is the measurement that holds device snapshots.
const MeasurementStatus = "hvac_status"

// WriteSnapshot queues one device snapshot. It never blocks and is a
// no-op when the client is closed.
func (c *Client) WriteSnapshot(d *device.Device, source string, at time.Time) {
	if d == nil {
		return
	}

	c.mu.RLock()
	connected := c.connected
	observer := c.observer
	c.mu.RUnlock()

	if !connected || c.writer == nil {
		return
	}

	c.writer.WritePoint(snapshotPoint(d, source, at))
	if observer != nil {
		observer.ObserveSnapshot()
	}
}

// snapshotPoint converts a device state to a line-protocol point.
func snapshotPoint(d *device.Device, source string, at time.Time) *write.Point {
	tags := map[string]string{
		"device_id":  d.ID,
		"gateway_id": d.GatewayID,
		"address":    d.Address,
		"source":     source,
	}
	if d.Location.Building != "" {
		tags["building"] = d.Location.Building
	}

	fields := map[string]any{
		"status":    string(d.Status),
		"mode":      string(d.Mode),
		"fan_speed": int64(d.FanSpeed.Encode()),
		"online":    d.Online,
	}
	if d.CurrentTemp != nil {
		fields["current_temp"] = *d.CurrentTemp
	}
	if d.SetTemp != nil {
		fields["set_temp"] = *d.SetTemp
	}

	return write.NewPoint(MeasurementStatus, tags, fields, at.UTC())
}
