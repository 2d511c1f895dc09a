package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceStatus   = "device_status"
	MeasurementDeviceVersion  = "device_version"
	MeasurementDeviceCommands = "device_commands"
)

// WriteDeviceStatus records a status report. online is stored as 1, anything
// else as 0.
func (c *Client) WriteDeviceStatus(deviceID, status string, at time.Time) {
	online := 0
	if status == "online" {
		online = 1
	}
	c.WritePoint(MeasurementDeviceStatus,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"online": online, "status": status},
		at,
	)
}

// WriteDeviceVersion records a firmware version report.
func (c *Client) WriteDeviceVersion(deviceID, version string, at time.Time) {
	c.WritePoint(MeasurementDeviceVersion,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"version": version},
		at,
	)
}

// WriteCommand records one outbound command publish and whether it succeeded.
func (c *Client) WriteCommand(deviceID, commandType, dispatchID string, ok bool, at time.Time) {
	c.WritePoint(MeasurementDeviceCommands,
		map[string]string{
			"device_id": deviceID,
			"type":      commandType,
		},
		map[string]interface{}{
			"dispatch_id": dispatchID,
			"ok":          ok,
		},
		at,
	)
}

// WritePoint writes an arbitrary point. Zero at means now.
// Dropped silently when the client is not connected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
