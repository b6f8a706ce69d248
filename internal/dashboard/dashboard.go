package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultStatusSchedule = "@every 1m"

type Options struct {
	RefreshInterval time.Duration
	// StatusSchedule is a cron expression for CheckAll; "" disables it.
	StatusSchedule string
	// StatusRate paces CheckAll in checks per second; 0 disables pacing.
	StatusRate float64
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Dashboard wires one user's store, poller and status checker to that
// user's server list and keeps them running until Close.
type Dashboard struct {
	store    *Store
	poller   *Poller
	checker  *StatusChecker
	source   ServerSource
	schedule string
	logger   *slog.Logger

	mu          sync.Mutex
	syncMu      sync.Mutex
	cron        *cron.Cron
	unsubscribe func()
	cancel      context.CancelFunc
}

func New(source ServerSource, caller Caller, opts Options) (*Dashboard, error) {
	if opts.StatusSchedule != "" {
		if _, err := cron.ParseStandard(opts.StatusSchedule); err != nil {
			return nil, fmt.Errorf("invalid status check schedule %q: %w", opts.StatusSchedule, err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := NewStore()
	return &Dashboard{
		store:    store,
		poller:   NewPoller(store, caller, opts.RefreshInterval, opts.Metrics),
		checker:  NewStatusChecker(store, caller, opts.StatusRate, opts.Metrics),
		source:   source,
		schedule: opts.StatusSchedule,
		logger:   logger.With("component", "dashboard"),
	}, nil
}

func (d *Dashboard) Store() *Store                { return d.store }
func (d *Dashboard) Poller() *Poller              { return d.poller }
func (d *Dashboard) Checker() *StatusChecker      { return d.checker }
func (d *Dashboard) Snapshot() Snapshot           { return d.store.Snapshot() }
func (d *Dashboard) SetInterval(iv time.Duration) { d.poller.SetInterval(iv) }

// Start loads the server list, subscribes to its changes, starts the
// refresh timer and the status schedule, and kicks off a first refresh and
// check in the background.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := d.reload(runCtx); err != nil {
		cancel()
		return err
	}
	d.cancel = cancel

	d.unsubscribe = d.source.Subscribe(func() {
		go func() {
			if err := d.Sync(runCtx); err != nil && runCtx.Err() == nil {
				d.logger.Warn("Server list resync failed", "error", err)
			}
		}()
	})

	d.poller.Start(runCtx)

	if d.schedule != "" {
		d.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := d.cron.AddFunc(d.schedule, func() { d.checker.CheckAll(runCtx) }); err != nil {
			d.stopLocked()
			return fmt.Errorf("schedule status checks: %w", err)
		}
		d.cron.Start()
	}

	go func() {
		d.poller.RefreshAll(runCtx)
		d.checker.CheckAll(runCtx)
	}()
	return nil
}

// Sync reloads the server list into the store. Servers seen for the first
// time are refreshed and checked right away.
func (d *Dashboard) Sync(ctx context.Context) error {
	added, err := d.reload(ctx)
	if err != nil {
		return err
	}
	for _, id := range added {
		go func() {
			if state, ok := d.store.Get(id); ok && state.Server.IsActive {
				d.poller.RefreshOne(ctx, id)
			}
			d.checker.CheckOne(ctx, id)
		}()
	}
	return nil
}

// Load fills the store from the source without probing anything. It is for
// one-shot use without Start.
func (d *Dashboard) Load(ctx context.Context) error {
	_, err := d.reload(ctx)
	return err
}

func (d *Dashboard) reload(ctx context.Context) ([]uuid.UUID, error) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	servers, err := d.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return d.store.Sync(servers), nil
}

// Close stops every timer and drops results of calls still in flight.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Dashboard) stopLocked() {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	if d.cron != nil {
		d.cron.Stop()
		d.cron = nil
	}
	d.poller.Stop()
	if d.cancel != nil {
		d.cancel()
	}
	d.store.Close()
}
