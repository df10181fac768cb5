// Package bus is the world's event log surface: an append-only store of
// witnessed events with a bounded in-memory window for filtered reads.
//
// Writes are serialized by a mutex and are atomic per event: an event that
// fails to persist never enters the window. Reads filter against a consistent
// snapshot of the window, which refreshes from the store at most once per
// refresh interval unless forced.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/types"
)

const (
	// DefaultWindowSize bounds how many recent events the window holds.
	DefaultWindowSize = 500

	// DefaultRefreshInterval is the minimum wall-time spacing between
	// store refreshes on the read path.
	DefaultRefreshInterval = 5 * time.Second
)

// WorldView is the slice of world state the bus needs: who is where. The
// scheduler's WorldContext satisfies it.
type WorldView interface {
	AgentsAt(locationID string) []string
}

// Filter selects events on the read path. Zero-valued fields match anything;
// set fields compose as conjunctions.
type Filter struct {
	// AgentID matches the emitting agent.
	AgentID string

	// LocationID matches the emitting location.
	LocationID string

	// Type matches the event type.
	Type types.EventType

	// After keeps only events with Timestamp strictly after this instant.
	After time.Time

	// Witnesses, when non-empty, keeps only events whose witness set
	// contains every listed agent.
	Witnesses []string

	// ForceRefresh bypasses the refresh-interval throttle.
	ForceRefresh bool
}

// Bus fans events out to witnesses and serves filtered reads over a bounded
// recency window.
type Bus struct {
	store store.Store
	world WorldView

	worldID         string
	windowSize      int
	refreshInterval time.Duration

	mu          sync.RWMutex
	window      []*types.Event // timestamp-desc
	lastRefresh time.Time
	now         func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithWindowSize overrides the window bound.
func WithWindowSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.windowSize = n
		}
	}
}

// WithRefreshInterval overrides the minimum spacing between store refreshes.
func WithRefreshInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.refreshInterval = d
		}
	}
}

// WithClock injects a time source. Tests use this to control refresh
// throttling without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a bus over the given store for one world.
func New(s store.Store, world WorldView, worldID string, opts ...Option) *Bus {
	b := &Bus{
		store:           s,
		world:           world,
		worldID:         worldID,
		windowSize:      DefaultWindowSize,
		refreshInterval: DefaultRefreshInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add computes the witness set, persists the event, then appends it to the
// window. The witness set is every agent currently at the event's location.
// Persist failures leave the window untouched.
func (b *Bus) Add(ctx context.Context, e *types.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.WorldID = b.worldID
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	e.WitnessIDs = b.world.AgentsAt(e.LocationID)

	if err := b.store.CreateEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	b.insertLocked(e)
	logging.BusDebug("Event added: %s at %s (%d witnesses)", e.ID, e.LocationID, len(e.WitnessIDs))
	return nil
}

// insertLocked places e into the timestamp-desc window and re-truncates.
func (b *Bus) insertLocked(e *types.Event) {
	i := 0
	for i < len(b.window) && b.window[i].Timestamp.After(e.Timestamp) {
		i++
	}
	b.window = append(b.window, nil)
	copy(b.window[i+1:], b.window[i:])
	b.window[i] = e
	if len(b.window) > b.windowSize {
		b.window = b.window[:b.windowSize]
	}
}

// Events returns the window's events matching the filter, newest first, plus
// the last refresh time. Callers use the refresh time as their "seen through"
// cursor; it is monotonic.
func (b *Bus) Events(ctx context.Context, f Filter) ([]*types.Event, time.Time, error) {
	if err := b.maybeRefresh(ctx, f.ForceRefresh); err != nil {
		return nil, time.Time{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*types.Event
	for _, e := range b.window {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out, b.lastRefresh, nil
}

func (f Filter) matches(e *types.Event) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.LocationID != "" && e.LocationID != f.LocationID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.After.IsZero() && !e.Timestamp.After(f.After) {
		return false
	}
	for _, w := range f.Witnesses {
		if !e.Witnessed(w) {
			return false
		}
	}
	return true
}

// maybeRefresh reloads the window from the store when the refresh interval
// has elapsed or force is set. lastRefresh never moves backwards.
func (b *Bus) maybeRefresh(ctx context.Context, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	if !force && !b.lastRefresh.IsZero() && now.Sub(b.lastRefresh) < b.refreshInterval {
		return nil
	}

	events, err := b.store.RecentEvents(ctx, b.worldID, b.windowSize)
	if err != nil {
		return fmt.Errorf("failed to refresh event window: %w", err)
	}
	b.window = events
	if now.After(b.lastRefresh) {
		b.lastRefresh = now
	}
	logging.BusDebug("Window refreshed: %d events", len(events))
	return nil
}
