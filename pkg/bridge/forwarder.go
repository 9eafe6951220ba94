package bridge

import (
	"sync"

	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

// NotificationSink delivers a bridge notification to the remote side.
type NotificationSink func(*jsonrpc.Message) error

// EventForwarder subscribes to the active provider's EIP-1193 events and
// republishes them as wallet_event notifications. It owns the map from
// event name to listener reference, so detaching removes exactly the
// listeners a previous attach added, across any number of provider
// switches.
type EventForwarder struct {
	logger logging.Logger
	sink   NotificationSink

	mu        sync.Mutex
	attached  provider.Provider
	listeners map[string]*provider.Listener
}

// NewEventForwarder creates a forwarder publishing through sink.
func NewEventForwarder(sink NotificationSink, logger logging.Logger) *EventForwarder {
	return &EventForwarder{
		logger: logger.WithFields(logging.String("component", "event-forwarder")),
		sink:   sink,
	}
}

// Attach registers the forwarded event listeners on p exactly once.
// Re-attaching the already attached provider is a no-op; attaching a
// different provider first detaches the old one.
func (f *EventForwarder) Attach(p provider.Provider) {
	if p == nil {
		return
	}

	f.mu.Lock()
	if f.attached == p {
		f.mu.Unlock()
		return
	}
	if f.attached != nil {
		f.detachLocked()
	}

	f.attached = p
	f.listeners = make(map[string]*provider.Listener, len(provider.ForwardedEvents))
	for _, event := range provider.ForwardedEvents {
		name := event
		listener := provider.NewListener(func(args ...interface{}) {
			f.publish(name, args)
		})
		f.listeners[name] = listener
		p.On(name, listener)
	}
	f.mu.Unlock()

	f.logger.Debug("provider event listeners attached")
}

// Detach removes the listeners previously registered on p. Calling it
// for a provider that is not attached is a no-op.
func (f *EventForwarder) Detach(p provider.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached == nil || f.attached != p {
		return
	}
	f.detachLocked()
}

// DetachAll removes the listeners from whatever provider is attached.
func (f *EventForwarder) DetachAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attached == nil {
		return
	}
	f.detachLocked()
}

// Attached returns the currently attached provider, nil when none.
func (f *EventForwarder) Attached() provider.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

func (f *EventForwarder) detachLocked() {
	for event, listener := range f.listeners {
		f.attached.RemoveListener(event, listener)
	}
	f.attached = nil
	f.listeners = nil
	f.logger.Debug("provider event listeners detached")
}

// publish re-emits one provider event as a wallet_event notification.
// An event with a single argument forwards that argument alone; anything
// else forwards the full argument list.
func (f *EventForwarder) publish(event string, args []interface{}) {
	var eventData interface{}
	switch len(args) {
	case 1:
		eventData = args[0]
	default:
		eventData = args
	}

	if err := f.sink(jsonrpc.NewWalletEvent(event, eventData)); err != nil {
		f.logger.Warn("failed to forward wallet event",
			logging.String("event", event),
			logging.Error(err))
	}
}
