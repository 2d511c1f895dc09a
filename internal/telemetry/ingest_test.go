package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// fakeSubscriber records Subscribe and Unsubscribe calls.
type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	qos      map[string]byte
	err      error
	unsubErr error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string]mqtt.MessageHandler),
		qos:      make(map[string]byte),
	}
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if s.err != nil {
		return s.err
	}
	s.handlers[topic] = handler
	s.qos[topic] = qos
	return nil
}

func (s *fakeSubscriber) Unsubscribe(topic string) error {
	if s.unsubErr != nil {
		return s.unsubErr
	}
	delete(s.handlers, topic)
	delete(s.qos, topic)
	return nil
}

// recordingHistory captures history writes.
type recordingHistory struct {
	mu       sync.Mutex
	statuses []string
	versions []string
}

func (h *recordingHistory) WriteDeviceStatus(id, status string, _ time.Time) {
	h.mu.Lock()
	h.statuses = append(h.statuses, id+"="+status)
	h.mu.Unlock()
}

func (h *recordingHistory) WriteDeviceVersion(id, version string, _ time.Time) {
	h.mu.Lock()
	h.versions = append(h.versions, id+"="+version)
	h.mu.Unlock()
}

type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Debug(string, ...any) {}
func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

// failingRegistry returns err from every upsert.
type failingRegistry struct{ err error }

func (r failingRegistry) UpsertFromStatus(context.Context, string, device.Status) (*device.Device, error) {
	return nil, r.err
}

func (r failingRegistry) UpsertFromVersion(context.Context, string, string) (*device.Device, error) {
	return nil, r.err
}

func newTestIngestor(t *testing.T) (*Ingestor, *device.Registry) {
	t.Helper()
	reg := device.NewRegistry(device.NewMemoryStore(), nil)
	return NewIngestor(reg, 1), reg
}

// ============================================================
// Start
// ============================================================

func TestIngestor_StartSubscribesDevicePatterns(t *testing.T) {
	in, _ := newTestIngestor(t)
	sub := newFakeSubscriber()

	if err := in.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, topic := range []string{"device/+/status", "device/+/version"} {
		if sub.handlers[topic] == nil {
			t.Errorf("no handler for %q", topic)
		}
		if sub.qos[topic] != 1 {
			t.Errorf("qos for %q = %d, want 1", topic, sub.qos[topic])
		}
	}
}

func TestIngestor_StartPropagatesError(t *testing.T) {
	in, _ := newTestIngestor(t)
	sub := newFakeSubscriber()
	sub.err = mqtt.ErrNotConnected

	if err := in.Start(sub); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestIngestor_StopRemovesHandlers(t *testing.T) {
	in, _ := newTestIngestor(t)
	sub := newFakeSubscriber()
	if err := in.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := in.Stop(sub); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(sub.handlers) != 0 {
		t.Errorf("handlers after Stop = %v, want none", sub.handlers)
	}
}

func TestIngestor_StopJoinsErrors(t *testing.T) {
	in, _ := newTestIngestor(t)
	sub := newFakeSubscriber()
	sub.unsubErr = mqtt.ErrUnsubscribeFailed

	err := in.Stop(sub)
	if !errors.Is(err, mqtt.ErrUnsubscribeFailed) {
		t.Fatalf("Stop() error = %v, want ErrUnsubscribeFailed", err)
	}
	for _, pattern := range []string{"device/+/status", "device/+/version"} {
		if !strings.Contains(err.Error(), pattern) {
			t.Errorf("Stop() error %q does not name %s", err, pattern)
		}
	}
}

// ============================================================
// HandleMessage
// ============================================================

func TestIngestor_StatusDiscoversDevice(t *testing.T) {
	in, reg := newTestIngestor(t)

	if err := in.HandleMessage("device/aa:bb:cc/status", []byte("online")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	d, err := reg.Find(context.Background(), "aa:bb:cc")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
	if d.Provenance != device.ProvenanceDiscovered {
		t.Errorf("Provenance = %q, want discovered", d.Provenance)
	}
	if d.LastSeen == nil {
		t.Error("LastSeen = nil, want set")
	}
}

func TestIngestor_VersionUpdatesDevice(t *testing.T) {
	in, reg := newTestIngestor(t)

	if err := in.HandleMessage("device/esp-01/version", []byte("1.4.2")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	d, err := reg.Find(context.Background(), "esp-01")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if d.CurrentVersion != "1.4.2" {
		t.Errorf("CurrentVersion = %q, want 1.4.2", d.CurrentVersion)
	}
}

func TestIngestor_IgnoresUnroutableTopics(t *testing.T) {
	in, reg := newTestIngestor(t)

	for _, topic := range []string{"device/esp-01", "device/esp-01/command", "other"} {
		if err := in.HandleMessage(topic, []byte("online")); err != nil {
			t.Errorf("HandleMessage(%q) error = %v", topic, err)
		}
	}

	devices, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("List() len = %d, want 0", len(devices))
	}
}

func TestIngestor_RejectsInvalidStatus(t *testing.T) {
	in, reg := newTestIngestor(t)
	logger := &countingLogger{}
	in.SetLogger(logger)

	if err := in.HandleMessage("device/esp-01/status", []byte("rebooting")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if _, err := reg.Find(context.Background(), "esp-01"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Find() error = %v, want ErrDeviceNotFound", err)
	}
	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}
}

func TestIngestor_RejectsEmptyID(t *testing.T) {
	in, _ := newTestIngestor(t)
	logger := &countingLogger{}
	in.SetLogger(logger)

	if err := in.HandleMessage("device//status", []byte("online")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}
}

func TestIngestor_StoreErrorReturned(t *testing.T) {
	boom := errors.New("disk full")
	in := NewIngestor(failingRegistry{err: boom}, 0)

	if err := in.HandleMessage("device/esp-01/status", []byte("online")); !errors.Is(err, boom) {
		t.Errorf("HandleMessage() error = %v, want %v", err, boom)
	}
}

func TestIngestor_WritesHistory(t *testing.T) {
	in, _ := newTestIngestor(t)
	history := &recordingHistory{}
	in.SetHistory(history)

	_ = in.HandleMessage("device/esp-01/status", []byte("offline"))
	_ = in.HandleMessage("device/esp-01/version", []byte("2.0.0"))
	_ = in.HandleMessage("device/esp-01/status", []byte("bogus"))

	if len(history.statuses) != 1 || history.statuses[0] != "esp-01=offline" {
		t.Errorf("statuses = %v, want [esp-01=offline]", history.statuses)
	}
	if len(history.versions) != 1 || history.versions[0] != "esp-01=2.0.0" {
		t.Errorf("versions = %v, want [esp-01=2.0.0]", history.versions)
	}
}

func TestIngestor_HandlersRouteThroughSubscriber(t *testing.T) {
	in, reg := newTestIngestor(t)
	sub := newFakeSubscriber()
	if err := in.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := sub.handlers["device/+/status"]
	if err := handler("device/esp-02/status", []byte(" ONLINE\n")); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	d, err := reg.Find(context.Background(), "esp-02")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
}
