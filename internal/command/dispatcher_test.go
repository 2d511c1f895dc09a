package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fota-core/internal/device"
	"github.com/nerrad567/fota-core/internal/infrastructure/mqtt"
)

// published is one captured Publish call.
type published struct {
	topic    string
	msg      Message
	qos      byte
	retained bool
	at       time.Time
}

// fakePublisher records publishes and can fail selected command types.
type fakePublisher struct {
	mu     sync.Mutex
	msgs   []published
	failOn map[string]error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[msg.Type]; err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{topic: topic, msg: msg, qos: qos, retained: retained, at: time.Now()})
	return nil
}

func (p *fakePublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

// recordingRecorder captures WriteCommand calls.
type recordingRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingRecorder) WriteCommand(deviceID, commandType, _ string, ok bool, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "ok"
	if !ok {
		state = "failed"
	}
	r.entries = append(r.entries, deviceID+"/"+commandType+"/"+state)
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

// ============================================================
// Validation
// ============================================================

func TestDispatch_InvalidRequest(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		req      Request
	}{
		{"neither url", "abc", Request{}},
		{"blank urls", "abc", Request{FirmwareURL: "  ", AssetsURL: "\t"}},
		{"empty device id", "", Request{FirmwareURL: "http://h/fw.bin"}},
		{"wildcard device id", "a+b", Request{FirmwareURL: "http://h/fw.bin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			d := NewDispatcher(pub, 0, 10*time.Millisecond)

			receipt, err := d.Dispatch(context.Background(), tt.deviceID, tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Dispatch() error = %v, want ErrInvalidRequest", err)
			}
			if receipt != nil {
				t.Errorf("Dispatch() receipt = %+v, want nil", receipt)
			}

			drain(t, d)
			if got := pub.snapshot(); len(got) != 0 {
				t.Errorf("published %d messages, want 0", len(got))
			}
		})
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Dispatch(ctx, "abc", Request{FirmwareURL: "http://h/fw.bin"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	if got := pub.snapshot(); len(got) != 0 {
		t.Errorf("published %d messages, want 0", len(got))
	}
}

// ============================================================
// Publishing
// ============================================================

func TestDispatch_FirmwareOnly(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 1, 10*time.Millisecond)

	receipt, err := d.Dispatch(context.Background(), "abc", Request{FirmwareURL: "http://h/fw.bin"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	drain(t, d)

	got := pub.snapshot()
	if len(got) != 1 {
		t.Fatalf("published %d messages, want 1", len(got))
	}
	want := Message{Type: TypeFirmware, URL: "http://h/fw.bin"}
	if got[0].msg != want {
		t.Errorf("message = %+v, want %+v", got[0].msg, want)
	}
	if got[0].topic != "device/abc/command" {
		t.Errorf("topic = %q, want device/abc/command", got[0].topic)
	}
	if got[0].qos != 1 || got[0].retained {
		t.Errorf("qos/retained = %d/%v, want 1/false", got[0].qos, got[0].retained)
	}
	if !receipt.FirmwareSent || receipt.AssetsPending || receipt.AssetsDueAt != nil {
		t.Errorf("receipt = %+v, want firmware only", receipt)
	}
	if receipt.DispatchID == "" {
		t.Error("receipt.DispatchID is empty")
	}
}

func TestDispatch_AssetsOnly(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 0, 20*time.Millisecond)

	start := time.Now()
	receipt, err := d.Dispatch(context.Background(), "abc", Request{AssetsURL: "http://h/assets.bin"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if receipt.FirmwareSent || !receipt.AssetsPending {
		t.Errorf("receipt = %+v, want assets only", receipt)
	}
	drain(t, d)

	got := pub.snapshot()
	if len(got) != 1 {
		t.Fatalf("published %d messages, want 1", len(got))
	}
	if got[0].msg.Type != TypeAssets {
		t.Errorf("type = %q, want %q", got[0].msg.Type, TypeAssets)
	}
	if elapsed := got[0].at.Sub(start); elapsed < 20*time.Millisecond {
		t.Errorf("assets published after %v, want >= 20ms", elapsed)
	}
}

func TestDispatch_BothOrderedByDelay(t *testing.T) {
	pub := &fakePublisher{}
	delay := 50 * time.Millisecond
	d := NewDispatcher(pub, 0, delay)

	start := time.Now()
	if _, err := d.Dispatch(context.Background(), "abc", Request{
		FirmwareURL: "http://h/fw.bin",
		AssetsURL:   "http://h/assets.bin",
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := pub.snapshot(); len(got) != 1 {
		t.Fatalf("published %d messages before the delay, want 1", len(got))
	}
	drain(t, d)

	got := pub.snapshot()
	if len(got) != 2 {
		t.Fatalf("published %d messages, want 2", len(got))
	}
	if got[0].msg.Type != TypeFirmware || got[1].msg.Type != TypeAssets {
		t.Errorf("order = %s, %s; want ota_url, assets_url", got[0].msg.Type, got[1].msg.Type)
	}
	if elapsed := got[1].at.Sub(start); elapsed < delay {
		t.Errorf("assets published after %v, want >= %v", elapsed, delay)
	}
}

func TestDispatch_DelayMeasuredFromCall(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 0, 500*time.Millisecond)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := clock
		clock = clock.Add(120 * time.Millisecond)
		return now
	}

	var scheduled time.Duration
	var fire func()
	d.afterFunc = func(delay time.Duration, f func()) *time.Timer {
		scheduled = delay
		fire = f
		return nil
	}

	receipt, err := d.Dispatch(context.Background(), "abc", Request{
		FirmwareURL: "http://h/fw.bin",
		AssetsURL:   "http://h/assets.bin",
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// One clock tick elapsed between the call and scheduling.
	if scheduled != 380*time.Millisecond {
		t.Errorf("scheduled delay = %v, want 380ms", scheduled)
	}
	if want := receipt.RequestedAt.Add(500 * time.Millisecond); !receipt.AssetsDueAt.Equal(want) {
		t.Errorf("AssetsDueAt = %v, want %v", receipt.AssetsDueAt, want)
	}

	fire()
	drain(t, d)
	if got := pub.snapshot(); len(got) != 2 {
		t.Fatalf("published %d messages, want 2", len(got))
	}
}

func TestDispatch_DefaultDelay(t *testing.T) {
	d := NewDispatcher(&fakePublisher{}, 0, 0)
	if d.assetsDelay != DefaultAssetsDelay {
		t.Errorf("assetsDelay = %v, want %v", d.assetsDelay, DefaultAssetsDelay)
	}
}

func TestDispatch_TopicKeepsDeviceIDCase(t *testing.T) {
	tests := []struct {
		name      string
		deviceID  string
		wantTopic string
		wantID    string
	}{
		{"upper case", "AA:BB:CC", "device/AA:BB:CC/command", "aa:bb:cc"},
		{"surrounding space trimmed", " AA:BB:CC ", "device/AA:BB:CC/command", "aa:bb:cc"},
		{"lower case", "aa:bb:cc", "device/aa:bb:cc/command", "aa:bb:cc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			d := NewDispatcher(pub, 0, 0)

			receipt, err := d.Dispatch(context.Background(), tt.deviceID, Request{FirmwareURL: "http://h/fw.bin"})
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if got := pub.snapshot(); got[0].topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", got[0].topic, tt.wantTopic)
			}
			if receipt.DeviceID != tt.wantID {
				t.Errorf("DeviceID = %q, want %q", receipt.DeviceID, tt.wantID)
			}
			if receipt.Topic != tt.wantTopic {
				t.Errorf("Receipt.Topic = %q, want %q", receipt.Topic, tt.wantTopic)
			}
		})
	}
}

// stubFinder returns a fixed set of devices keyed by normalized id.
type stubFinder map[string]*device.Device

func (f stubFinder) Find(_ context.Context, id string) (*device.Device, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

func TestDispatch_KnownDeviceUsesReportedCase(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 0, 0)
	d.SetDeviceFinder(stubFinder{
		"aa:bb:cc": {ID: "aa:bb:cc", TopicID: "AA:bb:CC"},
		"dd:ee":    {ID: "dd:ee"},
	})

	tests := []struct {
		deviceID  string
		wantTopic string
	}{
		{"aa:bb:cc", "device/AA:bb:CC/command"},
		{"AA:BB:CC", "device/AA:bb:CC/command"},
		{"DD:EE", "device/dd:ee/command"},
		{"Unknown", "device/Unknown/command"},
	}
	for _, tt := range tests {
		if _, err := d.Dispatch(context.Background(), tt.deviceID, Request{FirmwareURL: "http://h/fw.bin"}); err != nil {
			t.Fatalf("Dispatch(%q) error = %v", tt.deviceID, err)
		}
	}

	got := pub.snapshot()
	for i, tt := range tests {
		if got[i].topic != tt.wantTopic {
			t.Errorf("Dispatch(%q) topic = %q, want %q", tt.deviceID, got[i].topic, tt.wantTopic)
		}
	}
}

// ============================================================
// Failures
// ============================================================

func TestDispatch_FirmwareFailureSkipsAssets(t *testing.T) {
	pub := &fakePublisher{failOn: map[string]error{TypeFirmware: mqtt.ErrNotConnected}}
	d := NewDispatcher(pub, 0, 5*time.Millisecond)

	_, err := d.Dispatch(context.Background(), "abc", Request{
		FirmwareURL: "http://h/fw.bin",
		AssetsURL:   "http://h/assets.bin",
	})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Dispatch() error = %v, want ErrNotConnected", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := pub.snapshot(); len(got) != 0 {
		t.Errorf("published %d messages, want 0", len(got))
	}
}

func TestDispatch_DeferredFailureReported(t *testing.T) {
	pub := &fakePublisher{failOn: map[string]error{TypeAssets: mqtt.ErrPublishFailed}}
	d := NewDispatcher(pub, 0, 5*time.Millisecond)
	rec := &recordingRecorder{}
	d.SetRecorder(rec)

	var mu sync.Mutex
	var reported []error
	d.SetOnError(func(deviceID string, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	if _, err := d.Dispatch(context.Background(), "abc", Request{
		FirmwareURL: "http://h/fw.bin",
		AssetsURL:   "http://h/assets.bin",
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	drain(t, d)

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || !errors.Is(reported[0], mqtt.ErrPublishFailed) {
		t.Errorf("reported = %v, want one ErrPublishFailed", reported)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"abc/ota_url/ok", "abc/assets_url/failed"}
	if len(rec.entries) != len(want) {
		t.Fatalf("recorded = %v, want %v", rec.entries, want)
	}
	for i := range want {
		if rec.entries[i] != want[i] {
			t.Errorf("recorded[%d] = %q, want %q", i, rec.entries[i], want[i])
		}
	}
}

func TestDrain_RespectsContext(t *testing.T) {
	d := NewDispatcher(&fakePublisher{}, 0, time.Hour)
	d.afterFunc = func(time.Duration, func()) *time.Timer { return nil }

	if _, err := d.Dispatch(context.Background(), "abc", Request{AssetsURL: "http://h/a"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want DeadlineExceeded", err)
	}
}

func TestDispatch_RejectedAfterDrain(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, 0, 0)
	drain(t, d)

	_, err := d.Dispatch(context.Background(), "abc", Request{FirmwareURL: "http://h/fw.bin"})
	if !errors.Is(err, ErrDraining) {
		t.Fatalf("Dispatch() error = %v, want ErrDraining", err)
	}
	if got := pub.snapshot(); len(got) != 0 {
		t.Errorf("published %d messages after Drain, want 0", len(got))
	}
}

func TestDrain_ConcurrentWithDispatch(t *testing.T) {
	d := NewDispatcher(&fakePublisher{}, 0, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), "abc", Request{
				FirmwareURL: "http://h/fw.bin",
				AssetsURL:   "http://h/assets.bin",
			})
			if err != nil && !errors.Is(err, ErrDraining) {
				t.Errorf("Dispatch() error = %v", err)
			}
		}()
	}
	drain(t, d)
	wg.Wait()
}
