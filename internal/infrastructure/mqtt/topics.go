package mqtt

import "fmt"

// Topic prefixes used by the fleet and by this service.
const (
	// TopicPrefixDevice is the first segment of every per-device topic:
	// device/{id}/{kind}.
	TopicPrefixDevice = "device"

	// TopicPrefixSystem is the base for service presence topics.
	TopicPrefixSystem = "fota/system"
)

// Device topic kinds (the third segment of device/{id}/{kind}).
const (
	KindStatus  = "status"
	KindVersion = "version"
	KindCommand = "command"
)

// Topics provides builders for FOTA MQTT topics.
//
//	topics := mqtt.Topics{}
//	cmd := topics.DeviceCommand("aa:bb:cc:dd:ee:ff")
//	// Returns: "device/aa:bb:cc:dd:ee:ff/command"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceCommand returns the topic update commands are sent to.
//
// Example: device/aa:bb:cc/command
func (Topics) DeviceCommand(deviceID string) string {
	return deviceTopic(deviceID, KindCommand)
}

func deviceTopic(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, deviceID, kind)
}

// =============================================================================
// Subscription Patterns
// =============================================================================

// AllDeviceStatus returns the wildcard pattern matching every status topic.
//
// Pattern: device/+/status
func (Topics) AllDeviceStatus() string {
	return TopicPrefixDevice + "/+/" + KindStatus
}

// AllDeviceVersions returns the wildcard pattern matching every version topic.
//
// Pattern: device/+/version
func (Topics) AllDeviceVersions() string {
	return TopicPrefixDevice + "/+/" + KindVersion
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the retained presence topic for this service.
// It carries the Last Will on unexpected disconnect.
//
// Example: fota/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
