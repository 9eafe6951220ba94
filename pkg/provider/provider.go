// Package provider tracks browser wallet providers announced through the
// EIP-6963 discovery flow and owns the single "selected provider" slot.
// Consumers identify providers by UUID; the registry is the only owner of
// live provider handles, except for the active slot which holds one live
// reference for as long as it stays selected.
package provider

import "context"

// Info is the immutable identity of a detected wallet provider, taken
// verbatim from its EIP-6963 announcement.
type Info struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	RDNS string `json:"rdns"`
}

// EIP-1193 event names forwarded by the bridge.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
)

// ForwardedEvents lists the provider events the bridge republishes, in
// the order they are attached.
var ForwardedEvents = []string{
	EventAccountsChanged,
	EventChainChanged,
	EventConnect,
	EventDisconnect,
}

// Listener is an event callback with a stable identity. Registration and
// removal are keyed by the *Listener pointer, so the owner of a listener
// can always remove exactly what it added.
type Listener struct {
	fn func(args ...interface{})
}

// NewListener wraps fn in a Listener.
func NewListener(fn func(args ...interface{})) *Listener {
	return &Listener{fn: fn}
}

// Invoke calls the wrapped function.
func (l *Listener) Invoke(args ...interface{}) {
	l.fn(args...)
}

// Provider is the EIP-1193 surface the bridge consumes: a request method
// and an event emitter.
type Provider interface {
	// Request performs a wallet RPC call. Provider rejections should be
	// returned as *jsonrpc.ErrorObject so their numeric codes survive.
	Request(ctx context.Context, method string, params []interface{}) (interface{}, error)

	// On registers listener for the named event.
	On(event string, listener *Listener)

	// RemoveListener removes a previously registered listener. Removing
	// a listener that was never added is a no-op.
	RemoveListener(event string, listener *Listener)
}

// Initializer is an optional capability some injected provider proxies
// expose. When present, the dispatcher invokes it before the first
// accounts request after a provider switch.
type Initializer interface {
	Initialize(ctx context.Context) error
}
