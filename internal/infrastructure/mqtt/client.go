package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fota-core/internal/infrastructure/config"
)

// State is the connection state of a Client.
type State int

// Connection states. A client moves Disconnected → Connecting → Connected
// → Subscribed, and back to Connecting (auto-reconnect) or Disconnected.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client is an owned broker connection with explicit handler registration.
//
// Handlers registered with Subscribe are kept for the life of the client
// and re-subscribed on every (re)connect, so they may be registered before
// Connect is called.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state  State
	closed bool
	connMu sync.RWMutex

	onConnect     func()
	onDisconnect  func(err error)
	onStateChange func(from, to State)
	callbackMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run one at a time in arrival order and must not block for
// long. A returned error is logged and does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// New creates a disconnected client for the given broker configuration.
// Call Connect to open the session.
func New(cfg config.MQTTConfig) *Client {
	return newClient(cfg, pahomqtt.NewClient)
}

func newClient(cfg config.MQTTConfig, factory func(*pahomqtt.ClientOptions) pahomqtt.Client) *Client {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		state:         StateDisconnected,
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.setState(StateConnecting)
	})

	c.client = factory(opts)
	return c
}

// Connect opens the broker session and waits for the first CONNACK.
//
// On success all registered handlers are (re)subscribed and the retained
// online presence message is published. The wait ends early if ctx is
// cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.RLock()
	closed := c.closed
	c.connMu.RUnlock()
	if closed {
		return ErrClosed
	}

	c.setState(StateConnecting)

	token := c.client.Connect()
	timer := time.NewTimer(defaultConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously and may already have
	// advanced the state past Connected.
	c.transition(StateConnecting, StateConnected)
	return nil
}

// handleConnect runs on every successful connect, including reconnects.
func (c *Client) handleConnect() {
	c.setState(StateConnected)

	if c.restoreSubscriptions() {
		c.transition(StateConnected, StateSubscribed)
	}

	c.publishPresence(presenceOnline, "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions subscribes every registered handler on the broker.
// It reports whether at least one subscription is active and none failed.
func (c *Client) restoreSubscriptions() bool {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	ok := len(subs) > 0
	for _, sub := range subs {
		if err := c.brokerSubscribe(sub); err != nil {
			ok = false
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT resubscribe failed", "topic", sub.topic, "error", err)
			}
		}
	}
	return ok
}

// Close publishes a graceful offline presence message and disconnects.
// A closed client cannot be reconnected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishPresence(presenceOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.closed = true
	c.connMu.Unlock()
	c.setState(StateDisconnected)

	return nil
}

// HealthCheck reports ErrNotConnected unless the session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is Connected or Subscribed.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	return c.State() >= StateConnected && c.client.IsConnected()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

func (c *Client) setState(to State) {
	c.connMu.Lock()
	from := c.state
	c.state = to
	c.connMu.Unlock()

	if from != to {
		c.notifyStateChange(from, to)
	}
}

// transition moves to `to` only if the client is currently in `from`.
func (c *Client) transition(from, to State) bool {
	c.connMu.Lock()
	if c.state != from {
		c.connMu.Unlock()
		return false
	}
	c.state = to
	c.connMu.Unlock()

	c.notifyStateChange(from, to)
	return true
}

func (c *Client) notifyStateChange(from, to State) {
	c.callbackMu.RLock()
	callback := c.onStateChange
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(from, to)
	}
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnStateChange sets a callback invoked on every state transition.
func (c *Client) SetOnStateChange(callback func(from, to State)) {
	c.callbackMu.Lock()
	c.onStateChange = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging around a MessageHandler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
