package provider

import (
	"sync"
)

// Announcement pairs a provider's identity with its live handle, the Go
// rendition of an EIP-6963 announce event.
type Announcement struct {
	Info     Info
	Provider Provider
}

// DiscoveryBus is the rendezvous between the host environment, which
// owns wallet providers, and the registry, which detects them. The host
// registers an OnRequest hook and announces its providers; the registry
// broadcasts a request and collects the announcements that follow.
type DiscoveryBus struct {
	mu         sync.Mutex
	hooks      []func()
	collectors map[int]chan Announcement
	nextID     int
}

// NewDiscoveryBus creates an empty bus.
func NewDiscoveryBus() *DiscoveryBus {
	return &DiscoveryBus{
		collectors: make(map[int]chan Announcement),
	}
}

// OnRequest registers a host hook invoked whenever provider discovery is
// requested. Hosts typically respond by calling Announce for each
// provider they own, mirroring how EIP-6963 providers re-announce on a
// request event.
func (b *DiscoveryBus) OnRequest(hook func()) {
	b.mu.Lock()
	b.hooks = append(b.hooks, hook)
	b.mu.Unlock()
}

// RequestProviders broadcasts a discovery request to all host hooks.
func (b *DiscoveryBus) RequestProviders() {
	b.mu.Lock()
	hooks := make([]func(), len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// Announce delivers an announcement to every active collector. An
// announcement with no collector listening is dropped; providers are
// expected to re-announce on the next request.
func (b *DiscoveryBus) Announce(a Announcement) {
	b.mu.Lock()
	collectors := make([]chan Announcement, 0, len(b.collectors))
	for _, ch := range b.collectors {
		collectors = append(collectors, ch)
	}
	b.mu.Unlock()

	for _, ch := range collectors {
		select {
		case ch <- a:
		default:
			// Collector buffer full; the window is about to close anyway.
		}
	}
}

// collect opens a buffered announcement channel and returns it with a
// cancel function that detaches it from the bus.
func (b *DiscoveryBus) collect() (<-chan Announcement, func()) {
	ch := make(chan Announcement, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.collectors[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.collectors, id)
		b.mu.Unlock()
	}
}
