package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/ratelimit"
)

// Relay defaults.
const (
	// DefaultCallTimeout bounds how long a consumer call waits for the
	// wallet host to answer.
	DefaultCallTimeout = 30 * time.Second

	// DefaultInboundLimit caps inbound wallet-host messages per second.
	DefaultInboundLimit = 200
)

// ServerConfig holds relay server configuration. Addr, when set,
// overrides the port derivation (tests use "127.0.0.1:0").
type ServerConfig struct {
	Addr        string
	HTTPPort    int
	CallTimeout time.Duration
	InboundRate ratelimit.Rate
}

func (c *ServerConfig) applyDefaults() {
	if c.HTTPPort <= 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.Addr == "" {
		c.Addr = fmt.Sprintf("localhost:%d", c.HTTPPort+1)
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.InboundRate.Limit <= 0 || c.InboundRate.Interval <= 0 {
		c.InboundRate = ratelimit.Rate{Limit: DefaultInboundLimit, Interval: time.Second}
	}
}

// WalletEvent is a provider event forwarded through the relay.
type WalletEvent struct {
	Name string
	Data interface{}
}

// hostConn is the active wallet-host connection.
type hostConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (h *hostConn) write(msg *jsonrpc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge message: %w", err)
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the relay half of the bridge pair. It accepts the wallet
// host on /wallet-bridge, keeps exactly one host connection alive (a new
// connection takes over from the old one), and gives consumers a
// correlated request/response API over that connection.
type Server struct {
	logger  logging.Logger
	config  ServerConfig
	limiter ratelimit.RateLimiter

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	mu          sync.Mutex
	host        *hostConn
	pending     map[string]chan *jsonrpc.Message
	subscribers map[int]func(WalletEvent)
	nextSub     int
	listening   chan struct{}
	closed      bool
}

// NewServer creates a relay server; Start brings up the listener.
func NewServer(config ServerConfig, logger logging.Logger) *Server {
	config.applyDefaults()
	return &Server{
		logger:  logger.WithFields(logging.String("component", "relay-server")),
		config:  config,
		limiter: ratelimit.NewTokenBucketLimiter(config.InboundRate),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The relay binds to localhost; the browser page
				// connecting to it may carry any origin.
				return true
			},
		},
		pending:     make(map[string]chan *jsonrpc.Message),
		subscribers: make(map[int]func(WalletEvent)),
		listening:   make(chan struct{}),
	}
}

// Start binds the listener and begins serving. It returns once the
// listener is active; WaitListening is then already satisfied.
func (s *Server) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return NewAbortedError("server-start", "relay startup aborted", ctx.Err())
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return NewInitializationError("listen-failed",
			fmt.Sprintf("failed to listen on %s", s.config.Addr), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(BridgePath, s.handleBridge)

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	close(s.listening)
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("relay server stopped", logging.Error(err))
		}
	}()

	s.logger.Info("relay server listening", logging.String("addr", listener.Addr().String()))
	return nil
}

// WaitListening blocks until the listener is active or ctx ends.
func (s *Server) WaitListening(ctx context.Context) error {
	select {
	case <-s.listening:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the WebSocket URL of the bridge endpoint.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "ws://" + addr + BridgePath
}

// HasHost reports whether a wallet host is currently connected.
func (s *Server) HasHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host != nil
}

// WaitHost blocks until a wallet host has connected or ctx ends.
func (s *Server) WaitHost(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.HasHost() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleBridge upgrades a wallet-host connection. A connection arriving
// while another host is active takes over: the old host is told to stand
// down with a reconnected notification and its socket is closed.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade bridge connection", logging.Error(err))
		return
	}

	host := &hostConn{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	old := s.host
	s.host = host
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("wallet host replaced, signaling takeover",
			logging.String("old", old.id),
			logging.String("new", host.id))
		if err := old.write(jsonrpc.NewNotification(jsonrpc.NotifyReconnected)); err != nil {
			s.logger.Debug("failed to notify replaced host", logging.Error(err))
		}
		_ = old.conn.Close()
	}

	s.logger.Info("wallet host connected", logging.String("id", host.id))
	s.readHost(host)
}

// readHost consumes messages from the wallet host until it disconnects.
func (s *Server) readHost(host *hostConn) {
	defer func() {
		_ = host.conn.Close()

		s.mu.Lock()
		if s.host == host {
			s.host = nil
		}
		s.mu.Unlock()
		s.logger.Info("wallet host disconnected", logging.String("id", host.id))
	}()

	for {
		_, raw, err := host.conn.ReadMessage()
		if err != nil {
			return
		}

		if err := s.limiter.Wait(context.Background()); err != nil {
			return
		}
		s.handleHostMessage(raw)
	}
}

func (s *Server) handleHostMessage(raw []byte) {
	msg, err := jsonrpc.Validate(raw)
	if err != nil {
		s.logger.Warn("dropping malformed host message", logging.Error(err))
		return
	}

	switch jsonrpc.Classify(msg) {
	case jsonrpc.KindResponse:
		s.resolve(msg)

	case jsonrpc.KindNotification:
		if msg.Type == jsonrpc.NotifyWalletEvent {
			s.publishEvent(WalletEvent{Name: msg.EventName, Data: msg.EventData})
			return
		}
		s.logger.Debug("ignoring host notification",
			logging.String("type", string(msg.Type)))

	default:
		// The relay issues requests, it does not serve them.
		s.logger.Warn("unexpected request from wallet host",
			logging.String("method", msg.Method))
	}
}

// resolve hands a response to the waiting Call.
func (s *Server) resolve(msg *jsonrpc.Message) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		s.logger.Debug("response with non-string id dropped")
		return
	}

	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		// A response outliving its request, e.g. across a reconnect.
		s.logger.Debug("response without pending request", logging.String("id", id))
		return
	}
	ch <- msg
}

// Call sends a JSON-RPC request to the wallet host and waits for the
// correlated response. Provider rejections come back as
// *jsonrpc.ErrorObject.
func (s *Server) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == nil {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	ch := make(chan *jsonrpc.Message, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	req := jsonrpc.NewRequest(jsonrpc.StringID(id), method, params)
	if err := host.write(req); err != nil {
		return nil, NewConnectionError("send-failed", "failed to send request to wallet host", err)
	}

	timer := time.NewTimer(s.config.CallTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, NewTimeoutError("call-timeout",
			fmt.Sprintf("wallet host did not answer %s within %s", method, s.config.CallTimeout))
	case <-ctx.Done():
		return nil, NewAbortedError("call-aborted", "bridge call aborted", ctx.Err())
	}
}

// Ping probes bridge readiness. A pong proves the relay and wallet host
// are talking; it deliberately says nothing about wallet availability.
func (s *Server) Ping(ctx context.Context) (bool, error) {
	result, err := s.Call(ctx, MethodPing, nil)
	if err != nil {
		return false, err
	}
	var pong string
	if err := json.Unmarshal(result, &pong); err != nil {
		return false, nil
	}
	return pong == PingResult, nil
}

// NotifyCloseTab asks the wallet host to close its hosting window.
func (s *Server) NotifyCloseTab() error {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == nil {
		return ErrNotConnected
	}
	return host.write(jsonrpc.NewNotification(jsonrpc.NotifyCloseTab))
}

// SubscribeEvents registers a callback for forwarded wallet events. The
// returned function unsubscribes.
func (s *Server) SubscribeEvents(cb func(WalletEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Server) publishEvent(event WalletEvent) {
	s.mu.Lock()
	subs := make([]func(WalletEvent), 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		subs = append(subs, cb)
	}
	s.mu.Unlock()

	for _, cb := range subs {
		cb(event)
	}
}

// Close shuts the relay down, dropping the host connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	host := s.host
	s.host = nil
	server := s.httpServer
	s.mu.Unlock()

	if host != nil {
		_ = host.conn.Close()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}
