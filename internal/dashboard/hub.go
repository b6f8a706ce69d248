package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/google/uuid"
)

const DefaultIdleTimeout = 2 * time.Minute

// Factory builds a user's dashboard. The hub starts and stops it.
type Factory func(userID uuid.UUID) (*Dashboard, error)

type HubOptions struct {
	// IdleTimeout is how long a dashboard with no users keeps running.
	IdleTimeout time.Duration
	// RefreshInterval applies to users without their own preference.
	RefreshInterval time.Duration
	// RefreshSeconds returns a user's stored refresh preference, 0 for none.
	RefreshSeconds func(ctx context.Context, userID uuid.UUID) (int, error)
	Metrics        *telemetry.Metrics
}

type startCall struct {
	done chan struct{}
	err  error
}

type hubEntry struct {
	dash  *Dashboard
	refs  int
	timer *time.Timer
}

// Hub owns at most one running Dashboard per user. Dashboards start on the
// first Acquire and stop IdleTimeout after the last release.
type Hub struct {
	ctx     context.Context
	factory Factory
	opts    HubOptions
	logger  *slog.Logger

	mu        sync.Mutex
	entries   map[uuid.UUID]*hubEntry
	starting  map[uuid.UUID]*startCall
	overrides map[uuid.UUID]time.Duration
	closed    bool
}

func NewHub(ctx context.Context, factory Factory, opts HubOptions) *Hub {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Hub{
		ctx:       ctx,
		factory:   factory,
		opts:      opts,
		logger:    slog.Default().With("component", "dashboard.hub"),
		entries:   make(map[uuid.UUID]*hubEntry),
		starting:  make(map[uuid.UUID]*startCall),
		overrides: make(map[uuid.UUID]time.Duration),
	}
}

// Acquire returns the user's running dashboard, starting it if needed. The
// returned release must be called exactly once. Starting happens outside
// the hub lock; concurrent callers for the same user wait for that start.
func (h *Hub) Acquire(ctx context.Context, userID uuid.UUID) (*Dashboard, func(), error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, nil, context.Canceled
		}
		if entry, ok := h.entries[userID]; ok {
			release := h.retainLocked(userID, entry)
			h.mu.Unlock()
			return entry.dash, release, nil
		}
		if pending, ok := h.starting[userID]; ok {
			h.mu.Unlock()
			select {
			case <-pending.done:
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
			if pending.err != nil {
				return nil, nil, pending.err
			}
			continue
		}
		call := &startCall{done: make(chan struct{})}
		h.starting[userID] = call
		_, haveOverride := h.overrides[userID]
		h.mu.Unlock()

		dash, err := h.start(ctx, userID, haveOverride)

		h.mu.Lock()
		delete(h.starting, userID)
		call.err = err
		close(call.done)
		if err != nil {
			h.mu.Unlock()
			return nil, nil, err
		}
		if h.closed {
			h.mu.Unlock()
			dash.Close()
			return nil, nil, context.Canceled
		}
		entry := &hubEntry{dash: dash}
		h.entries[userID] = entry
		// Preferences or config may have changed while starting.
		dash.SetInterval(h.intervalLocked(userID))
		release := h.retainLocked(userID, entry)
		h.mu.Unlock()

		h.opts.Metrics.DashboardStarted()
		h.logger.Info("Dashboard started", "user_id", userID)
		return dash, release, nil
	}
}

// start builds and starts a dashboard without holding h.mu.
func (h *Hub) start(ctx context.Context, userID uuid.UUID, haveOverride bool) (*Dashboard, error) {
	dash, err := h.factory(userID)
	if err != nil {
		return nil, err
	}

	var loaded time.Duration
	if !haveOverride {
		loaded = h.loadOverride(ctx, userID)
	}

	h.mu.Lock()
	if _, ok := h.overrides[userID]; !ok && loaded > 0 {
		h.overrides[userID] = loaded
	}
	interval := h.intervalLocked(userID)
	h.mu.Unlock()

	dash.SetInterval(interval)
	if err := dash.Start(h.ctx); err != nil {
		return nil, err
	}
	return dash, nil
}

func (h *Hub) retainLocked(userID uuid.UUID, entry *hubEntry) func() {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.refs++

	var once sync.Once
	return func() { once.Do(func() { h.release(userID, entry) }) }
}

// loadOverride reads the user's stored refresh preference; 0 means none.
func (h *Hub) loadOverride(ctx context.Context, userID uuid.UUID) time.Duration {
	if h.opts.RefreshSeconds == nil {
		return 0
	}
	seconds, err := h.opts.RefreshSeconds(ctx, userID)
	if err != nil {
		h.logger.Warn("Failed to load refresh preference", "user_id", userID, "error", err)
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func (h *Hub) release(userID uuid.UUID, entry *hubEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry.refs--
	if entry.refs > 0 || h.closed {
		return
	}
	entry.timer = time.AfterFunc(h.opts.IdleTimeout, func() { h.evict(userID, entry) })
}

func (h *Hub) evict(userID uuid.UUID, entry *hubEntry) {
	h.mu.Lock()
	if h.entries[userID] != entry || entry.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.entries, userID)
	h.mu.Unlock()

	entry.dash.Close()
	h.opts.Metrics.DashboardStopped()
	h.logger.Info("Dashboard stopped after idle timeout", "user_id", userID)
}

// Get returns the user's dashboard if one is running.
func (h *Hub) Get(userID uuid.UUID) (*Dashboard, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.dash, true
}

// Running is the number of live dashboards.
func (h *Hub) Running() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// SetRefreshInterval changes the default interval and restarts the timer of
// every running dashboard whose user has no preference of their own.
func (h *Hub) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.RefreshInterval = d
	for userID, entry := range h.entries {
		if _, ok := h.overrides[userID]; !ok {
			entry.dash.SetInterval(d)
		}
	}
}

// ApplyPreferences records a user's refresh preference in seconds, 0 for
// the default, and restarts their running timer.
func (h *Hub) ApplyPreferences(userID uuid.UUID, refreshSeconds int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if refreshSeconds > 0 {
		h.overrides[userID] = time.Duration(refreshSeconds) * time.Second
	} else {
		delete(h.overrides, userID)
	}
	if entry, ok := h.entries[userID]; ok {
		entry.dash.SetInterval(h.intervalLocked(userID))
	}
}

func (h *Hub) intervalLocked(userID uuid.UUID) time.Duration {
	if d, ok := h.overrides[userID]; ok {
		return d
	}
	return h.opts.RefreshInterval
}

// Close stops every dashboard.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	entries := h.entries
	h.entries = make(map[uuid.UUID]*hubEntry)
	h.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.dash.Close()
		h.opts.Metrics.DashboardStopped()
	}
}
