package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const healthEndpoint = "/health"

// StatusChecker probes /health one server at a time.
type StatusChecker struct {
	store   *Store
	caller  Caller
	limiter *rate.Limiter
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewStatusChecker paces CheckAll at perSecond checks per second; zero or
// less means no pacing.
func NewStatusChecker(store *Store, caller Caller, perSecond float64, m *telemetry.Metrics) *StatusChecker {
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &StatusChecker{
		store:   store,
		caller:  caller,
		limiter: limiter,
		metrics: m,
		logger:  slog.Default().With("component", "dashboard.status"),
		now:     time.Now,
	}
}

// CheckOne moves id through checking to online, offline or unknown. A server
// with neither API endpoint nor host is unknown, not offline.
func (c *StatusChecker) CheckOne(ctx context.Context, id uuid.UUID) {
	state, ok := c.store.Get(id)
	if !ok {
		return
	}
	c.store.Update(id, func(s ServerState) ServerState {
		s.Status = StatusChecking
		return s
	})

	if !state.Server.HasTarget() {
		checked := c.now()
		c.finish(id, StatusUnknown, checked, nil)
		return
	}

	start := c.now()
	resp, err := c.caller.Call(ctx, proxy.Request{
		ServerID: id.String(),
		Endpoint: healthEndpoint,
		Method:   "GET",
	})
	checked := c.now()
	latency := checked.Sub(start).Milliseconds()

	status := StatusOnline
	if err != nil || !resp.OK() {
		status = StatusOffline
		if err != nil {
			c.logger.Debug("Health check failed", "server_id", id, "error", err)
		}
	}
	c.finish(id, status, checked, &latency)
}

func (c *StatusChecker) finish(id uuid.UUID, status Status, checked time.Time, latency *int64) {
	c.metrics.StatusCheck(string(status))
	c.store.Update(id, func(s ServerState) ServerState {
		s.Status = status
		s.LastChecked = &checked
		s.LatencyMs = latency
		return s
	})
}

// CheckAll checks every tracked server serially, in display order.
func (c *StatusChecker) CheckAll(ctx context.Context) {
	for _, id := range c.store.IDs() {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
		} else if ctx.Err() != nil {
			return
		}
		c.CheckOne(ctx, id)
	}
}
