package device

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"online", StatusOnline, false},
		{"offline", StatusOffline, false},
		{" online\n", StatusOnline, false},
		{"ONLINE", StatusOnline, false},
		{"", "", true},
		{"rebooting", "", true},
		{`{"status":"online"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStatus) {
					t.Errorf("ParseStatus(%q) error = %v, want ErrInvalidStatus", tt.raw, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, %v; want %q", tt.raw, got, err, tt.want)
			}
		})
	}
}

func TestDefaultDisplayName(t *testing.T) {
	tests := map[string]string{
		"aa:bb:cc:dd:ee:ff": "Device-ee:ff",
		"abc":               "Device-abc",
		"12345":             "Device-12345",
		"":                  "Device-",
	}
	for id, want := range tests {
		if got := DefaultDisplayName(id); got != want {
			t.Errorf("DefaultDisplayName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestNormalizeAndValidateID(t *testing.T) {
	if got := NormalizeID("  AA:BB  "); got != "aa:bb" {
		t.Errorf("NormalizeID = %q", got)
	}

	for _, bad := range []string{"", "a/b", "dev+", "#"} {
		if err := ValidateID(bad); !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", bad, err)
		}
	}
	if err := ValidateID("aa:bb:cc"); err != nil {
		t.Errorf("ValidateID(valid) = %v", err)
	}
}

func TestNewDevice_Provenance(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	discovered := newDevice("x", ProvenanceDiscovered, now)
	if discovered.LastSeen == nil || !discovered.Discovered() {
		t.Errorf("discovered device = %+v", discovered)
	}

	registered := newDevice("x", ProvenanceRegistered, now)
	if registered.LastSeen != nil || registered.Discovered() {
		t.Errorf("registered device = %+v", registered)
	}
	if registered.Status != StatusOffline || !registered.CreatedAt.Equal(now) {
		t.Errorf("registered device = %+v", registered)
	}
}

func TestDevice_Clone(t *testing.T) {
	var nilDevice *Device
	if nilDevice.Clone() != nil {
		t.Error("nil Clone should be nil")
	}

	now := time.Now()
	d := &Device{ID: "x", LastSeen: &now}
	c := d.Clone()
	*c.LastSeen = now.Add(time.Hour)
	if !d.LastSeen.Equal(now) {
		t.Error("Clone shares LastSeen pointer")
	}
}
