// Package bridge implements the wallet bridge relay: a WebSocket pair
// that lets a wallet-hosting environment expose an EIP-1193 provider to
// another local process over JSON-RPC 2.0. The Server half accepts the
// wallet host and offers consumers a correlated call API; the Client
// half lives with the wallet host, dispatching forwarded requests
// against the provider registry and pushing provider events back as
// notifications.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

// Setup step timeouts.
const (
	DefaultListenTimeout  = 30 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// Config holds the full bridge configuration.
type Config struct {
	Server ServerConfig
	Client ClientConfig

	ListenTimeout  time.Duration
	ConnectTimeout time.Duration
	HealthInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = DefaultListenTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
}

// Bridge owns the full relay lifecycle: server, wallet-host client, and
// the health probe between them. Start runs the multi-step handshake
// (listen, connect, readiness) with cooperative cancellation; a caller
// abandoning the context gets a typed error instead of a hang.
type Bridge struct {
	logger   logging.Logger
	config   Config
	registry *provider.Registry

	server *Server
	client *Client
	health *HealthChecker

	onUnhealthy func()
}

// New creates an unstarted bridge over the given registry.
func New(config Config, registry *provider.Registry, logger logging.Logger) *Bridge {
	config.applyDefaults()
	return &Bridge{
		logger:   logger.WithFields(logging.String("component", "bridge")),
		config:   config,
		registry: registry,
	}
}

// SetOnUnhealthy registers a callback invoked when the health probe
// declares the bridge dead.
func (b *Bridge) SetOnUnhealthy(cb func()) {
	b.onUnhealthy = cb
}

// Start brings the bridge up: open the relay server, wait for it to
// listen, connect the wallet-host client, and verify readiness with a
// ping roundtrip. Every step checks the context before proceeding and is
// bounded by a timeout, so an aborted or stalled setup surfaces as a
// typed error.
func (b *Bridge) Start(ctx context.Context) error {
	if err := checkAborted(ctx, "setup"); err != nil {
		return err
	}

	server := NewServer(b.config.Server, b.logger)
	if err := server.Start(ctx); err != nil {
		return err
	}
	b.server = server

	if err := b.waitStep(ctx, b.config.ListenTimeout, "wait-listening", server.WaitListening); err != nil {
		b.teardown()
		return err
	}

	if err := checkAborted(ctx, "connect"); err != nil {
		b.teardown()
		return err
	}

	clientConfig := b.config.Client
	if clientConfig.URL == "" {
		// Bind the client to the actual listener address so ephemeral
		// test ports work.
		clientConfig.URL = server.URL()
	}
	client := NewClient(clientConfig, b.registry, b.logger)
	b.client = client

	if err := client.Connect(); err != nil {
		// The client keeps retrying in the background; only the wait
		// below decides whether setup fails.
		b.logger.Debug("initial bridge dial failed, retrying", logging.Error(err))
	}
	if err := b.waitStep(ctx, b.config.ConnectTimeout, "wait-connected", client.WaitConnected); err != nil {
		b.teardown()
		return err
	}

	if err := checkAborted(ctx, "readiness"); err != nil {
		b.teardown()
		return err
	}

	readyCtx, cancel := context.WithTimeout(ctx, b.config.ConnectTimeout)
	ok, err := server.Ping(readyCtx)
	cancel()
	if err != nil || !ok {
		b.teardown()
		if err != nil {
			return NewInitializationError("readiness-probe",
				"wallet host failed the readiness probe", err)
		}
		return NewInitializationError("readiness-probe",
			"wallet host answered the readiness probe incorrectly", nil)
	}

	b.health = NewHealthChecker(b.config.HealthInterval, server.Ping, b.logger)
	b.health.Start(client.IsConnected, func() {
		b.logger.Warn("bridge declared unhealthy")
		if b.onUnhealthy != nil {
			b.onUnhealthy()
		}
	})

	b.logger.Info("bridge started", logging.String("url", server.URL()))
	return nil
}

// Stop tears the bridge down; safe to call after a failed Start.
func (b *Bridge) Stop() {
	if b.health != nil {
		b.health.Stop()
	}
	b.teardown()
}

// Server returns the relay server, nil before Start.
func (b *Bridge) Server() *Server {
	return b.server
}

// Client returns the wallet-host client, nil before Start.
func (b *Bridge) Client() *Client {
	return b.client
}

// Registry returns the provider registry the bridge dispatches against.
func (b *Bridge) Registry() *provider.Registry {
	return b.registry
}

func (b *Bridge) teardown() {
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
	if b.server != nil {
		_ = b.server.Close()
		b.server = nil
	}
}

// waitStep bounds one setup step, translating failures into the aborted
// or timeout error kinds.
func (b *Bridge) waitStep(ctx context.Context, timeout time.Duration, code string, wait func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := wait(stepCtx); err != nil {
		if ctx.Err() != nil {
			return NewAbortedError(code, "bridge setup aborted", ctx.Err())
		}
		return NewTimeoutError(code, fmt.Sprintf("bridge setup step %s timed out after %s", code, timeout))
	}
	return nil
}

func checkAborted(ctx context.Context, step string) error {
	if ctx.Err() != nil {
		return NewAbortedError(step, "bridge setup aborted", ctx.Err())
	}
	return nil
}
