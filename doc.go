// Package walletbridge provides a local relay that exposes a
// browser-injected Ethereum wallet provider (EIP-1193/EIP-6963) to
// another process over a WebSocket speaking JSON-RPC 2.0.
//
// The bridge is split into two halves connected by one ordered socket:
//
//   - The relay server (pkg/bridge.Server) listens on
//     ws://localhost:<port+1>/wallet-bridge, accepts exactly one
//     wallet-host connection at a time, and gives consumers a correlated
//     request/response API plus a subscription surface for forwarded
//     wallet events. A second host connecting takes the relay over; the
//     first is told to stand down and stops reconnecting.
//
//   - The wallet-host client (pkg/bridge.Client) dials the relay,
//     answers forwarded JSON-RPC requests against the provider registry
//     (pkg/provider.Registry), and republishes provider events
//     (accountsChanged, chainChanged, connect, disconnect) as
//     wallet_event notifications.
//
// Bridge-internal methods (ping, rotki_getAvailableProviders,
// rotki_getSelectedProvider, rotki_selectProvider) are answered without
// touching the wallet; every other method is forwarded verbatim to the
// selected provider's request method.
//
// # Standard Errors
//
// Lifecycle failures are typed so callers of the setup sequence can
// branch on what went wrong:
//
//   - ErrInitialization: a setup step failed
//
//   - ErrTimeout: a setup step or consumer call exceeded its deadline
//
//   - ErrConnection: the transport failed while establishing or holding
//     the bridge connection
//
//   - ErrAborted: the caller cancelled the setup sequence
//
//   - ErrNotConnected: an operation required an established connection
//
// # Example
//
// Running a bridge over a registry backed by a file selection store:
//
//	logger := logging.NewZapLogger()
//	bus := provider.NewDiscoveryBus()
//	store := provider.NewFileStore(stateFile)
//	registry := provider.NewRegistry(bus, store, logger)
//
//	b := bridge.New(bridge.Config{}, registry, logger)
//	if err := b.Start(ctx); err != nil {
//	    log.Fatalf("bridge startup failed: %v", err)
//	}
//	defer b.Stop()
//
//	result, err := b.Server().Call(ctx, "eth_chainId", nil)
package walletbridge
