package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

func newTestBridge(t *testing.T) (*Bridge, *provider.Registry) {
	t.Helper()
	bus := provider.NewDiscoveryBus()
	registry := provider.NewRegistry(bus, provider.NewMemoryStore(), logging.NewLogger())
	b := New(Config{
		Server: ServerConfig{Addr: "127.0.0.1:0"},
		Client: ClientConfig{
			MaxRetries: 3,
			RetryDelay: 20 * time.Millisecond,
		},
		ListenTimeout:  5 * time.Second,
		ConnectTimeout: 5 * time.Second,
		HealthInterval: 50 * time.Millisecond,
	}, registry, logging.NewLogger())
	t.Cleanup(b.Stop)
	return b, registry
}

func TestBridgeStartEndToEnd(t *testing.T) {
	b, _ := newTestBridge(t)

	require.NoError(t, b.Start(context.Background()))

	assert.NotNil(t, b.Server())
	assert.NotNil(t, b.Client())
	assert.True(t, b.Client().IsConnected())
	assert.True(t, b.Server().HasHost())

	ok, err := b.Server().Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBridgeStartAborted(t *testing.T) {
	b, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestBridgeCallThroughRelay(t *testing.T) {
	b, registry := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	mock := provider.NewMockProvider()
	mock.SetRequestHandler(func(method string, _ []interface{}) (interface{}, error) {
		if method == MethodRequestAccounts {
			return []string{"0xabc"}, nil
		}
		return "0x1", nil
	})
	registry.AddProvider(provider.Info{UUID: "uuid-1", Name: "Test"}, mock)
	require.True(t, registry.Select("uuid-1"))

	result, err := b.Server().Call(context.Background(), MethodRequestAccounts, nil)
	require.NoError(t, err)

	var accounts []string
	require.NoError(t, json.Unmarshal(result, &accounts))
	assert.Equal(t, []string{"0xabc"}, accounts)
	assert.Equal(t, 1, mock.GetInitializeCalls())
}

func TestBridgeCallWithoutProvider(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	_, err := b.Server().Call(context.Background(), "eth_accounts", nil)
	require.Error(t, err)

	var rpcErr *jsonrpc.ErrorObject
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
	assert.Equal(t, NoProviderMessage, rpcErr.Message)
}

func TestBridgeSelectProviderThroughRelay(t *testing.T) {
	b, registry := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	registry.AddProvider(provider.Info{UUID: "uuid-1", Name: "Test"}, provider.NewMockProvider())

	result, err := b.Server().Call(context.Background(), MethodSelectProvider, []interface{}{"uuid-1"})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("true"), result)
	assert.Equal(t, "uuid-1", registry.SelectedUUID())

	result, err = b.Server().Call(context.Background(), MethodGetSelectedProvider, nil)
	require.NoError(t, err)
	var info provider.Info
	require.NoError(t, json.Unmarshal(result, &info))
	assert.Equal(t, "uuid-1", info.UUID)
}

func TestBridgeForwardsWalletEvents(t *testing.T) {
	b, registry := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	mock := provider.NewMockProvider()
	registry.AddProvider(provider.Info{UUID: "uuid-1", Name: "Test"}, mock)
	require.True(t, registry.Select("uuid-1"))

	events := make(chan WalletEvent, 1)
	unsubscribe := b.Server().SubscribeEvents(func(e WalletEvent) { events <- e })
	defer unsubscribe()

	mock.Emit(provider.EventAccountsChanged, []string{"0xabc"})

	select {
	case e := <-events:
		assert.Equal(t, provider.EventAccountsChanged, e.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("wallet event never crossed the bridge")
	}
}

func TestBridgeHealthCheckerRuns(t *testing.T) {
	b, _ := newTestBridge(t)
	require.NoError(t, b.Start(context.Background()))

	unhealthy := make(chan struct{}, 1)
	b.SetOnUnhealthy(func() { unhealthy <- struct{}{} })

	// A healthy bridge stays quiet across several probe intervals.
	select {
	case <-unhealthy:
		t.Fatal("healthy bridge declared unhealthy")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridgeStopIsSafeWithoutStart(t *testing.T) {
	b, _ := newTestBridge(t)
	assert.NotPanics(t, b.Stop)
}
