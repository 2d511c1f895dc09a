package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-observer event buffer used when NewHub is given 0.
const DefaultBufferSize = 256

// Event is one notification as seen by an observer.
type Event struct {
	// Seq increases by one per Publish across the whole hub.
	Seq       uint64    `json:"seq"`
	Name      string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Hub delivers published events to every current observer.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Hub struct {
	bufferSize int
	logger     Logger
	now        func() time.Time

	mu        sync.Mutex
	observers map[uint64]*Observer
	nextID    uint64
	seq       uint64
	closed    bool
}

// NewHub creates a hub whose observers buffer up to bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		logger:     noopLogger{},
		now:        time.Now,
		observers:  make(map[uint64]*Observer),
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Subscribe attaches a new observer. It receives only events published
// after this call. On a closed hub the observer's channel is already closed.
func (h *Hub) Subscribe() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	o := &Observer{
		id:     h.nextID,
		hub:    h,
		events: make(chan Event, h.bufferSize),
	}
	if h.closed {
		close(o.events)
		o.closed = true
		return o
	}
	h.observers[o.id] = o
	h.logger.Debug("observer subscribed", "observer_id", o.id, "observers", len(h.observers))
	return o
}

// Publish delivers an event to every observer without blocking.
// It satisfies device.Broadcaster.
func (h *Hub) Publish(name string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.seq++
	ev := Event{
		Seq:       h.seq,
		Name:      name,
		Payload:   payload,
		Timestamp: h.now().UTC(),
	}

	for _, o := range h.observers {
		select {
		case o.events <- ev:
		default:
			o.dropped.Add(1)
		}
	}
}

// ObserverCount returns the number of attached observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Run blocks until ctx is cancelled and then closes the hub.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return nil
}

// Close detaches and closes every observer. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		o.closeLocked()
		delete(h.observers, id)
	}
}

func (h *Hub) remove(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[o.id]; ok {
		delete(h.observers, o.id)
		o.closeLocked()
		h.logger.Debug("observer unsubscribed", "observer_id", o.id, "observers", len(h.observers))
	}
}

// Observer is one subscriber's view of the hub.
type Observer struct {
	id      uint64
	hub     *Hub
	events  chan Event
	dropped atomic.Uint64

	// closed is guarded by hub.mu.
	closed bool
}

// Events returns the observer's channel. It is closed when the observer
// is closed or the hub shuts down.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Dropped returns how many events were discarded because the buffer was full.
func (o *Observer) Dropped() uint64 {
	return o.dropped.Load()
}

// Close detaches the observer from the hub. Safe to call more than once.
func (o *Observer) Close() {
	o.hub.remove(o)
}

func (o *Observer) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.events)
}
