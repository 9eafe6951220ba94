package provider

import (
	"context"
	"sync"
	"time"

	"github.com/veiloq/wallet-bridge/pkg/logging"
)

// DetectOptions controls one detection run.
type DetectOptions struct {
	// Timeout is the announcement collection window per attempt.
	Timeout time.Duration

	// RetryDelay is the pause between attempts while nothing has been
	// detected yet.
	RetryDelay time.Duration

	// MaxRetries is the total number of attempts.
	MaxRetries int
}

// Detection defaults; the window is deliberately short because EIP-6963
// providers answer a request event almost immediately when present.
const (
	DefaultDetectTimeout    = 300 * time.Millisecond
	DefaultDetectRetryDelay = 300 * time.Millisecond
	DefaultDetectMaxRetries = 3
)

func (o *DetectOptions) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultDetectTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultDetectRetryDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultDetectMaxRetries
	}
}

type registryEntry struct {
	info     Info
	provider Provider
}

// Registry detects announced providers, owns the UUID to handle map, and
// holds the selected provider slot. Selection is persisted through a
// SelectionStore so it survives restarts; a persisted UUID that has not
// been detected yet is a valid "pending restoration" state, and the live
// handle attaches once its announcement arrives.
type Registry struct {
	logger logging.Logger
	bus    *DiscoveryBus
	store  SelectionStore

	mu        sync.Mutex
	entries   map[string]*registryEntry
	order     []string
	selected  string
	active    Provider
	persisted string

	subscribers map[int]func(Provider)
	nextSub     int
}

// NewRegistry creates a registry bound to a discovery bus and a
// selection store. A previously persisted selection is restored as
// pending until detection attaches its live handle.
func NewRegistry(bus *DiscoveryBus, store SelectionStore, logger logging.Logger) *Registry {
	r := &Registry{
		logger:      logger.WithFields(logging.String("component", "provider-registry")),
		bus:         bus,
		store:       store,
		entries:     make(map[string]*registryEntry),
		subscribers: make(map[int]func(Provider)),
	}

	uuid, err := store.Load()
	if err != nil {
		r.logger.Warn("failed to load persisted provider selection", logging.Error(err))
	} else if uuid != "" {
		r.selected = uuid
		r.persisted = uuid
		r.logger.Debug("restored provider selection, awaiting detection",
			logging.String("uuid", uuid))
	}

	return r
}

// Detect broadcasts a discovery request and collects announcements for
// the configured window, retrying while the cumulative detected set is
// empty. It returns the full accumulated provider list; already seen
// UUIDs are never re-added, so repeated calls without new announcements
// return an identical list. Zero responders after all retries is not an
// error.
func (r *Registry) Detect(ctx context.Context, opts DetectOptions) ([]Info, error) {
	opts.applyDefaults()

	for attempt := 1; ; attempt++ {
		if err := r.collectOnce(ctx, opts.Timeout); err != nil {
			return r.Providers(), err
		}

		if len(r.Providers()) > 0 || attempt >= opts.MaxRetries {
			break
		}

		r.logger.Debug("no providers announced, retrying detection",
			logging.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return r.Providers(), ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	list := r.Providers()
	if len(list) == 0 {
		r.logger.Warn("provider detection finished with no responders")
	}
	return list, nil
}

// collectOnce runs a single announcement collection window.
func (r *Registry) collectOnce(ctx context.Context, window time.Duration) error {
	ch, cancel := r.bus.collect()
	defer cancel()

	r.bus.RequestProviders()

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case a := <-ch:
			r.AddProvider(a.Info, a.Provider)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AddProvider registers a provider directly, bypassing the bus. It is
// used both for collected announcements and for a single injected
// provider supplied by the host. Duplicate UUIDs keep their original
// entry. When the added UUID matches a pending selection, the live
// handle attaches and change subscribers fire.
func (r *Registry) AddProvider(info Info, p Provider) {
	if info.UUID == "" || p == nil {
		return
	}

	r.mu.Lock()
	if _, seen := r.entries[info.UUID]; seen {
		r.mu.Unlock()
		return
	}
	r.entries[info.UUID] = &registryEntry{info: info, provider: p}
	r.order = append(r.order, info.UUID)

	attached := false
	if r.selected == info.UUID && r.active == nil {
		r.active = p
		attached = true
	}
	subs := r.snapshotSubscribersLocked()
	r.mu.Unlock()

	r.logger.Debug("provider detected",
		logging.String("uuid", info.UUID),
		logging.String("name", info.Name))

	if attached {
		r.logger.Info("pending provider selection restored",
			logging.String("uuid", info.UUID))
		for _, cb := range subs {
			cb(p)
		}
	}
}

// Select switches the active provider. An empty UUID clears the
// selection. A known UUID attaches its live handle immediately. An
// unknown UUID is accepted only when it matches the persisted selection
// (restore before detection); anything else returns false without
// touching the persisted state. Change subscribers fire synchronously
// with the new live handle, or nil when it is not yet available.
func (r *Registry) Select(uuid string) bool {
	r.mu.Lock()

	var next Provider
	switch {
	case uuid == "":
		next = nil
	case r.entries[uuid] != nil:
		next = r.entries[uuid].provider
	case uuid == r.persisted:
		// Lazy restore: the selection is valid, the handle attaches once
		// the provider announces itself.
		next = nil
	default:
		r.mu.Unlock()
		r.logger.Warn("ignoring selection of unknown provider", logging.String("uuid", uuid))
		return false
	}

	r.selected = uuid
	r.active = next
	subs := r.snapshotSubscribersLocked()
	r.mu.Unlock()

	r.persist(uuid)
	r.logger.Info("provider selection changed",
		logging.String("uuid", uuid),
		logging.Bool("live", next != nil))

	for _, cb := range subs {
		cb(next)
	}
	return true
}

// ActiveProvider returns the current live handle, or nil while the
// selection is absent or pending restoration.
func (r *Registry) ActiveProvider() Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SelectedUUID returns the selected provider UUID, empty when none.
func (r *Registry) SelectedUUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// SelectedInfo returns the metadata of the selected provider. The second
// return is false when nothing is selected or the selection has not been
// detected yet.
func (r *Registry) SelectedInfo() (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == "" {
		return Info{}, false
	}
	e, ok := r.entries[r.selected]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Providers returns the accumulated detected provider list in detection
// order.
func (r *Registry) Providers() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.order))
	for _, uuid := range r.order {
		out = append(out, r.entries[uuid].info)
	}
	return out
}

// OnChange registers a callback fired synchronously whenever the active
// handle transitions, including a pending selection attaching its live
// handle. The returned function unsubscribes.
func (r *Registry) OnChange(cb func(active Provider)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = cb
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

func (r *Registry) snapshotSubscribersLocked() []func(Provider) {
	subs := make([]func(Provider), 0, len(r.subscribers))
	for _, cb := range r.subscribers {
		subs = append(subs, cb)
	}
	return subs
}

func (r *Registry) persist(uuid string) {
	if err := r.store.Save(uuid); err != nil {
		r.logger.Warn("failed to persist provider selection", logging.Error(err))
		return
	}
	r.mu.Lock()
	r.persisted = uuid
	r.mu.Unlock()
}
