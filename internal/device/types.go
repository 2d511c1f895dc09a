package device

import (
	"fmt"
	"strings"
	"time"
)

// Status is the connectivity state a device last reported.
type Status string

// Device statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ParseStatus converts a raw status payload into a Status.
// Surrounding whitespace is ignored and matching is case-insensitive.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusOnline, StatusOffline:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Provenance records how a device first entered the registry.
type Provenance string

// Device provenances.
const (
	// ProvenanceRegistered devices were created through an explicit Register call.
	ProvenanceRegistered Provenance = "registered"

	// ProvenanceDiscovered devices were created by their first inbound message.
	ProvenanceDiscovered Provenance = "discovered"
)

// defaultNameSuffixLen is how many trailing id characters the default display name keeps.
const defaultNameSuffixLen = 5

// Device is one physical unit in the fleet.
type Device struct {
	ID             string     `json:"id"`
	TopicID        string     `json:"topicId,omitempty"`
	DisplayName    string     `json:"displayName"`
	Status         Status     `json:"status"`
	LastSeen       *time.Time `json:"lastSeen,omitempty"`
	CurrentVersion string     `json:"currentVersion,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Provenance     Provenance `json:"provenance"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Clone returns a copy that shares no pointers with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		c.LastSeen = &t
	}
	return &c
}

// Discovered reports whether the device was created by an inbound message.
func (d *Device) Discovered() bool {
	return d.Provenance == ProvenanceDiscovered
}

// touch advances LastSeen to at, never moving it backwards.
func (d *Device) touch(at time.Time) {
	if d.LastSeen != nil && at.Before(*d.LastSeen) {
		return
	}
	t := at
	d.LastSeen = &t
}

// newDevice is the single constructor for both provenances.
// Discovered devices are seen at creation; registered ones are not.
func newDevice(id string, provenance Provenance, now time.Time) *Device {
	d := &Device{
		ID:          id,
		DisplayName: DefaultDisplayName(id),
		Status:      StatusOffline,
		Provenance:  provenance,
		CreatedAt:   now,
	}
	if provenance == ProvenanceDiscovered {
		d.touch(now)
	}
	return d
}

// CommandTopicID returns the id to address the device with on the broker:
// the case it last reported, or its registry id when it never reported.
func (d *Device) CommandTopicID() string {
	if d.TopicID != "" {
		return d.TopicID
	}
	return d.ID
}

// NormalizeID trims and lower-cases a device id so that "AA:BB" and
// " aa:bb " address the same device. It is the registry key only; broker
// topics keep the case the device uses.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateID checks an already-normalized id.
// Ids become MQTT topic levels, so separators and wildcards are rejected.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains a topic separator or wildcard", ErrInvalidID, id)
	}
	return nil
}

// DefaultDisplayName is "Device-" followed by the last five characters of id.
func DefaultDisplayName(id string) string {
	r := []rune(id)
	if len(r) > defaultNameSuffixLen {
		r = r[len(r)-defaultNameSuffixLen:]
	}
	return "Device-" + string(r)
}
