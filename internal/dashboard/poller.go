package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRefreshInterval = 10 * time.Second
	metricsEndpoint        = "/metrics"
)

// Poller refreshes metrics for every active tracked server at once, on a
// timer and on demand.
type Poller struct {
	store   *Store
	caller  Caller
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	interval time.Duration
	reset    chan time.Duration
	stop     chan struct{}
	done     chan struct{}

	refreshing atomic.Bool
}

func NewPoller(store *Store, caller Caller, interval time.Duration, m *telemetry.Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Poller{
		store:    store,
		caller:   caller,
		metrics:  m,
		logger:   slog.Default().With("component", "dashboard.poller"),
		now:      time.Now,
		interval: interval,
	}
}

// RefreshOne fetches /metrics for id and merges the result. It never fails:
// anything short of a decodable 2xx answer becomes fallback data with a
// notice in Error.
func (p *Poller) RefreshOne(ctx context.Context, id uuid.UUID) {
	state, ok := p.store.Get(id)
	if !ok {
		return
	}
	p.store.Update(id, func(s ServerState) ServerState {
		s.Loading = true
		s.Error = ""
		return s
	})

	if !state.Server.HasTarget() {
		p.fallback(id, "No API endpoint configured, showing demo data")
		return
	}

	resp, err := p.caller.Call(ctx, proxy.Request{
		ServerID: id.String(),
		Endpoint: metricsEndpoint,
		Method:   "GET",
	})
	if err != nil {
		p.logger.Debug("Metrics call failed", "server_id", id, "error", err)
		p.fallback(id, failureNotice(err))
		return
	}
	if !resp.OK() {
		p.fallback(id, fmt.Sprintf("Server answered %d, showing demo data", resp.StatusCode))
		return
	}

	now := p.now()
	decoded, defaulted, err := decodeMetrics(resp.Body, FallbackMetrics(id, now), now)
	if err != nil {
		p.logger.Debug("Undecodable metrics", "server_id", id, "error", err)
		p.fallback(id, "Unreadable metrics payload, showing demo data")
		return
	}

	source := SourceLive
	if len(defaulted) > 0 {
		source = SourcePartial
	}
	p.metrics.MetricsRefresh(string(source))
	p.store.Update(id, func(s ServerState) ServerState {
		s.Metrics = &decoded
		s.Source = source
		s.Defaulted = defaulted
		s.Loading = false
		s.Error = ""
		return s
	})
}

func (p *Poller) fallback(id uuid.UUID, notice string) {
	m := FallbackMetrics(id, p.now())
	p.metrics.MetricsRefresh(string(SourceFallback))
	p.store.Update(id, func(s ServerState) ServerState {
		s.Metrics = &m
		s.Source = SourceFallback
		s.Defaulted = nil
		s.Loading = false
		s.Error = notice
		return s
	})
}

func failureNotice(err error) string {
	var upstream *proxy.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "Server unreachable, showing demo data"
	case errors.Is(err, proxy.ErrNotFoundOrDenied):
		return "Server not found, showing demo data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Metrics request timed out, showing demo data"
	default:
		return "Failed to fetch metrics, showing demo data"
	}
}

// RefreshAll refreshes every active server concurrently and stamps
// LastRefresh once all of them have settled.
func (p *Poller) RefreshAll(ctx context.Context) {
	ids := p.store.ActiveIDs()
	start := p.now()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			p.RefreshOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	p.store.SetLastRefresh(p.now())
	p.metrics.RefreshAllDuration(p.now().Sub(start))
}

// Start runs RefreshAll every interval until Stop. A tick that arrives
// while the previous refresh is still running is skipped.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.reset = make(chan time.Duration, 1)
	go p.loop(ctx, p.interval, p.reset, p.stop, p.done)
}

// Stop cancels the timer. Calls already in flight finish on their own.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done, p.reset = nil, nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// SetInterval changes the refresh period and restarts a running timer.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultRefreshInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if d == p.interval {
		return
	}
	p.interval = d
	if p.reset != nil {
		select {
		case <-p.reset:
		default:
		}
		p.reset <- d
	}
}

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case d := <-reset:
			ticker.Reset(d)
			p.logger.Debug("Refresh interval changed", "interval", d)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.refreshing.CompareAndSwap(false, true) {
		return
	}
	// Detached so that Stop does not abort calls already dispatched; the
	// proxy timeout still bounds them.
	refreshCtx := context.WithoutCancel(ctx)
	go func() {
		defer p.refreshing.Store(false)
		p.RefreshAll(refreshCtx)
	}()
}
