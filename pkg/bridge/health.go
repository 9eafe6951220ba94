package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/veiloq/wallet-bridge/pkg/logging"
)

// DefaultHealthInterval is the liveness probe period.
const DefaultHealthInterval = 5 * time.Second

// CheckFunc probes the connection, reporting false (or an error) when it
// is no longer healthy.
type CheckFunc func(ctx context.Context) (bool, error)

// HealthChecker runs a fixed-interval liveness probe. A failed or
// errored probe triggers the disconnect callback and stops the loop; the
// owner restarts it after reconnecting.
type HealthChecker struct {
	logger   logging.Logger
	interval time.Duration
	check    CheckFunc

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// NewHealthChecker creates a stopped checker. A non-positive interval
// falls back to DefaultHealthInterval.
func NewHealthChecker(interval time.Duration, check CheckFunc, logger logging.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthChecker{
		logger:   logger.WithFields(logging.String("component", "health-checker")),
		interval: interval,
		check:    check,
	}
}

// Start begins the probe loop. Ticks while isConnected reports false are
// skipped. Starting an already running checker is a no-op.
func (h *HealthChecker) Start(isConnected func() bool, onDisconnect func()) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()

	go h.run(stop, isConnected, onDisconnect)
}

// Stop cancels the probe loop; idempotent.
func (h *HealthChecker) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stop)
}

// Running reports whether the probe loop is active.
func (h *HealthChecker) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *HealthChecker) run(stop chan struct{}, isConnected func() bool, onDisconnect func()) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !isConnected() {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), h.interval)
			ok, err := h.check(ctx)
			cancel()

			if err != nil || !ok {
				if err != nil {
					h.logger.Warn("connection health check failed", logging.Error(err))
				} else {
					h.logger.Warn("connection health check reported disconnect")
				}
				h.Stop()
				onDisconnect()
				return
			}
		}
	}
}
