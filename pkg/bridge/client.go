package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

// ConnState is the connection lifecycle state of the wallet-host client.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of a connection state
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Connection defaults.
const (
	// DefaultHTTPPort is the fallback application port when none is
	// configured; the bridge WebSocket listens one above it.
	DefaultHTTPPort = 4242

	// BridgePath is the WebSocket endpoint path.
	BridgePath = "/wallet-bridge"

	DefaultMaxRetries       = 5
	DefaultRetryDelay       = 500 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
)

// ClientConfig holds wallet-host client configuration. URL, when set,
// overrides the port derivation.
type ClientConfig struct {
	URL              string
	HTTPPort         int
	MaxRetries       int
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration

	// Detect tunes provider discovery for rotki_getAvailableProviders;
	// zero values use the registry defaults.
	Detect provider.DetectOptions
}

func (c *ClientConfig) applyDefaults() {
	if c.HTTPPort <= 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
}

// BridgeURL returns the WebSocket target, derived as one port above the
// application's HTTP port unless an explicit URL is configured.
func (c *ClientConfig) BridgeURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("ws://localhost:%d%s", c.HTTPPort+1, BridgePath)
}

// Client is the wallet-host side of the bridge: it dials the relay,
// answers forwarded JSON-RPC requests against the provider registry, and
// pushes provider events back as notifications. Reconnection is
// automatic with a bounded attempt count, suppressed after an
// intentional disconnect and latched off permanently once a newer
// connection takes over.
type Client struct {
	logger     logging.Logger
	config     ClientConfig
	dispatcher *Dispatcher
	forwarder  *EventForwarder
	registry   *provider.Registry

	mu                    sync.Mutex
	conn                  *websocket.Conn
	state                 ConnState
	lastErr               error
	retryAttempt          int
	retryTimer            *time.Timer
	intentionalDisconnect bool
	preventReconnect      bool

	writeMu sync.Mutex

	onTakeover    func()
	onCloseTab    func() error
	onStateChange func(ConnState)

	unsubscribe func()
}

// NewClient creates a wallet-host client over the given registry. The
// event forwarder follows the registry's active provider for as long as
// the connection is up.
func NewClient(config ClientConfig, registry *provider.Registry, logger logging.Logger) *Client {
	config.applyDefaults()

	c := &Client{
		logger:   logger.WithFields(logging.String("component", "bridge-client")),
		config:   config,
		registry: registry,
	}
	c.dispatcher = NewDispatcher(registry, config.Detect, logger)
	c.forwarder = NewEventForwarder(c.sendMessage, logger)

	// Follow provider switches while connected so event listeners move
	// with the active provider.
	c.unsubscribe = registry.OnChange(func(active provider.Provider) {
		if !c.IsConnected() {
			return
		}
		if active == nil {
			c.forwarder.DetachAll()
			return
		}
		c.forwarder.Attach(active)
	})

	return c
}

// SetTakeoverCallback registers the callback invoked when a newer bridge
// connection claims the relay and this client steps aside.
func (c *Client) SetTakeoverCallback(cb func()) {
	c.mu.Lock()
	c.onTakeover = cb
	c.mu.Unlock()
}

// SetCloseTabCallback registers the best-effort host window close hook.
func (c *Client) SetCloseTabCallback(cb func() error) {
	c.mu.Lock()
	c.onCloseTab = cb
	c.mu.Unlock()
}

// OnStateChange registers a callback fired on every connection state
// transition, for the UI status indicator.
func (c *Client) OnStateChange(cb func(ConnState)) {
	c.mu.Lock()
	c.onStateChange = cb
	c.mu.Unlock()
}

// Connect starts the connection attempt sequence from attempt zero. It
// is a no-op when already connected or connecting. A failed dial records
// the error and schedules a background retry, so a non-nil return only
// reports the first attempt.
func (c *Client) Connect() error {
	return c.connect(0)
}

func (c *Client) connect(attempt int) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	if attempt >= c.config.MaxRetries {
		err := NewConnectionError("max-retries-exceeded",
			"giving up on bridge connection", c.lastErr)
		c.mu.Unlock()
		c.logger.Error("bridge connection attempts exhausted",
			logging.Int("attempts", attempt))
		return err
	}
	c.state = StateConnecting
	c.retryAttempt = attempt
	if attempt == 0 {
		// A fresh connect sequence discards a stale intentional flag.
		c.intentionalDisconnect = false
	}
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	url := c.config.BridgeURL()
	c.logger.Debug("dialing bridge",
		logging.String("url", url),
		logging.Int("attempt", attempt))

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.state = StateDisconnected
		c.mu.Unlock()
		c.notifyState(StateDisconnected)
		c.logger.Warn("bridge dial failed",
			logging.Int("attempt", attempt),
			logging.Error(err))
		c.scheduleRetry(attempt + 1)
		return NewConnectionError("dial-failed", "failed to reach bridge", err)
	}

	c.mu.Lock()
	if c.intentionalDisconnect {
		// Disconnect arrived while the dial was in flight.
		c.intentionalDisconnect = false
		c.state = StateDisconnected
		c.mu.Unlock()
		_ = conn.Close()
		c.notifyState(StateDisconnected)
		c.logger.Info("discarding connection established after disconnect")
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.lastErr = nil
	c.retryAttempt = 0
	c.mu.Unlock()
	c.notifyState(StateConnected)
	c.logger.Info("bridge connected", logging.String("url", url))

	if active := c.registry.ActiveProvider(); active != nil {
		c.forwarder.Attach(active)
	}

	go c.readLoop(conn)
	return nil
}

// scheduleRetry arms the reconnect timer unless reconnection is
// suppressed.
func (c *Client) scheduleRetry(attempt int) {
	c.mu.Lock()
	if c.preventReconnect || c.intentionalDisconnect || attempt >= c.config.MaxRetries {
		exhausted := attempt >= c.config.MaxRetries && !c.preventReconnect && !c.intentionalDisconnect
		c.mu.Unlock()
		if exhausted {
			c.logger.Error("bridge connection attempts exhausted",
				logging.Int("attempts", attempt))
		}
		return
	}
	c.retryTimer = time.AfterFunc(c.config.RetryDelay, func() {
		_ = c.connect(attempt)
	})
	c.mu.Unlock()
}

// readLoop processes inbound messages sequentially until the transport
// closes.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.handleMessage(raw)
	}
}

// handleMessage validates one inbound payload and routes it. Malformed
// payloads are answered with a parse error when an ID is recoverable and
// dropped with a log entry otherwise.
func (c *Client) handleMessage(raw []byte) {
	msg, err := jsonrpc.Validate(raw)
	if err != nil {
		if id, ok := jsonrpc.RecoverID(raw); ok {
			resp := jsonrpc.NewError(id, jsonrpc.CodeParseError, err.Error(), nil)
			if sendErr := c.sendMessage(resp); sendErr != nil {
				c.logger.Warn("failed to send parse error response", logging.Error(sendErr))
			}
		} else {
			c.logger.Warn("dropping unparseable bridge message", logging.Error(err))
		}
		return
	}

	switch jsonrpc.Classify(msg) {
	case jsonrpc.KindRequest:
		// Requests run off the read loop: a forwarded call can block on a
		// wallet prompt, and ping and notifications must keep flowing
		// while it does. Responses are correlated by ID, so completion
		// order does not matter.
		go func(req *jsonrpc.Message) {
			resp := c.dispatcher.Dispatch(c.requestContext(), req)
			if err := c.sendMessage(resp); err != nil {
				c.logger.Warn("failed to send response",
					logging.String("method", req.Method),
					logging.Error(err))
			}
		}(msg)
	case jsonrpc.KindNotification:
		c.handleNotification(msg)
	default:
		// The wallet host issues no requests of its own, so inbound
		// responses have nothing to correlate against.
		c.logger.Debug("ignoring unexpected response message")
	}
}

func (c *Client) handleNotification(msg *jsonrpc.Message) {
	switch msg.Type {
	case jsonrpc.NotifyReconnected:
		// A newer connection has taken over; step aside for good rather
		// than fighting it for the relay.
		c.mu.Lock()
		c.preventReconnect = true
		cb := c.onTakeover
		c.mu.Unlock()
		c.logger.Info("newer bridge connection detected, reconnection disabled")
		if cb != nil {
			cb()
		}

	case jsonrpc.NotifyCloseTab:
		c.mu.Lock()
		cb := c.onCloseTab
		c.mu.Unlock()
		if cb == nil {
			c.logger.Debug("close_tab notification with no close handler")
			return
		}
		if err := cb(); err != nil {
			c.logger.Warn("failed to close hosting window", logging.Error(err))
		}

	default:
		c.logger.Debug("ignoring notification",
			logging.String("type", string(msg.Type)))
	}
}

// handleClose consumes the one-shot disconnect guards and either
// schedules a retry or stops.
func (c *Client) handleClose(cause error) {
	c.mu.Lock()
	if c.conn == nil && c.state == StateDisconnected && !c.intentionalDisconnect {
		// Close already handled through Disconnect.
		c.mu.Unlock()
		return
	}
	wasIntentional := c.intentionalDisconnect
	c.intentionalDisconnect = false
	prevent := c.preventReconnect
	attempt := c.retryAttempt
	if !wasIntentional && cause != nil {
		c.lastErr = cause
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	c.notifyState(StateDisconnected)

	c.forwarder.DetachAll()

	if wasIntentional || prevent {
		c.logger.Info("bridge disconnected",
			logging.Bool("intentional", wasIntentional))
		return
	}

	c.logger.Warn("bridge connection lost, scheduling reconnect",
		logging.Error(orUnknown(cause)))
	c.scheduleRetry(attempt + 1)
}

// Disconnect closes the connection without any reconnection attempt.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentionalDisconnect = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Nothing open; the flag stays armed for an in-flight dial.
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bridge client closing"))
	c.writeMu.Unlock()
	_ = conn.Close()
}

// Close tears the client down entirely.
func (c *Client) Close() {
	c.Disconnect()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.dispatcher.Close()
}

// IsConnected reports whether the bridge connection is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// IsConnecting reports whether a connection attempt is in flight.
func (c *Client) IsConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnecting
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent transport error, nil after a
// successful connect.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// WaitConnected blocks until the connection is established or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sendMessage serializes and writes one message; it is the notification
// sink for the event forwarder and the response path for the dispatcher.
func (c *Client) sendMessage(msg *jsonrpc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge message: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) requestContext() context.Context {
	return context.Background()
}

func (c *Client) notifyState(state ConnState) {
	c.mu.Lock()
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

func orUnknown(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("connection closed")
}
