package telemetry

import (
	"strings"

	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// Kind is the message kind carried in the third topic level.
type Kind string

// Recognized kinds.
const (
	KindStatus  Kind = mqtt.KindStatus
	KindVersion Kind = mqtt.KindVersion
)

// minTopicLevels is the number of levels in device/{id}/{kind}.
const minTopicLevels = 3

// Route is a parsed device topic.
type Route struct {
	DeviceID string
	Kind     Kind
}

// Parse classifies a topic. It reports false for topics with fewer than
// three levels and for kinds other than status and version. The device id
// is returned exactly as it appears in the topic.
func Parse(topic string) (Route, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicLevels {
		return Route{}, false
	}

	switch kind := Kind(parts[2]); kind {
	case KindStatus, KindVersion:
		return Route{DeviceID: parts[1], Kind: kind}, true
	default:
		return Route{}, false
	}
}
