package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veiloq/wallet-bridge/pkg/logging"
)

func alwaysConnected() bool { return true }

func TestHealthCheckerProbesAtInterval(t *testing.T) {
	var probes int32
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&probes, 1)
		return true, nil
	}, logging.NewLogger())

	h.Start(alwaysConnected, func() { t.Error("unexpected disconnect callback") })
	defer h.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&probes) >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, h.Running())
}

func TestHealthCheckerStopsOnFailedProbe(t *testing.T) {
	var disconnects int32
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	}, logging.NewLogger())

	h.Start(alwaysConnected, func() { atomic.AddInt32(&disconnects, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&disconnects) == 1
	}, time.Second, 5*time.Millisecond)

	// The loop does not restart itself after a failure.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&disconnects))
	assert.False(t, h.Running())
}

func TestHealthCheckerStopsOnProbeError(t *testing.T) {
	var disconnects int32
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		return true, errors.New("ping failed")
	}, logging.NewLogger())

	h.Start(alwaysConnected, func() { atomic.AddInt32(&disconnects, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&disconnects) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.Running())
}

func TestHealthCheckerSkipsTicksWhileDisconnected(t *testing.T) {
	var probes int32
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&probes, 1)
		return true, nil
	}, logging.NewLogger())

	h.Start(func() bool { return false }, func() { t.Error("unexpected disconnect callback") })
	defer h.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&probes))
	assert.True(t, h.Running())
}

func TestHealthCheckerStartIsIdempotent(t *testing.T) {
	var probes int32
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&probes, 1)
		return true, nil
	}, logging.NewLogger())

	h.Start(alwaysConnected, func() {})
	h.Start(alwaysConnected, func() {})
	defer h.Stop()

	time.Sleep(35 * time.Millisecond)

	// A second Start must not spawn a second probe loop.
	count := atomic.LoadInt32(&probes)
	assert.LessOrEqual(t, count, int32(4))
	assert.GreaterOrEqual(t, count, int32(2))
}

func TestHealthCheckerStopIsIdempotent(t *testing.T) {
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		return true, nil
	}, logging.NewLogger())

	h.Start(alwaysConnected, func() {})
	h.Stop()
	assert.NotPanics(t, h.Stop)
	assert.False(t, h.Running())
}

func TestHealthCheckerRestartAfterFailure(t *testing.T) {
	var healthy atomic.Bool
	h := NewHealthChecker(10*time.Millisecond, func(context.Context) (bool, error) {
		return healthy.Load(), nil
	}, logging.NewLogger())

	done := make(chan struct{})
	h.Start(alwaysConnected, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}

	// The owner may start the checker again after reconnecting.
	healthy.Store(true)
	h.Start(alwaysConnected, func() { t.Error("unexpected disconnect") })
	defer h.Stop()

	require.Eventually(t, func() bool { return h.Running() }, time.Second, 5*time.Millisecond)
}
