// Package dashboard keeps the per-user live view of registered servers:
// last known metrics from a concurrent fan-out poller and liveness from a
// serial status checker, merged into a Store keyed by server id.
package dashboard

import (
	"context"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/proxy"
)

// Source says where a metrics snapshot came from.
type Source string

const (
	SourceLive     Source = "live"
	SourcePartial  Source = "partial"
	SourceFallback Source = "fallback"
)

type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusChecking Status = "checking"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
)

type Usage = models.Usage

type Metrics struct {
	CPU         float64   `json:"cpu"`
	Memory      Usage     `json:"memory"`
	Disk        Usage     `json:"disk"`
	Uptime      *float64  `json:"uptime,omitempty"`
	LoadAverage []float64 `json:"loadAverage,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ServerState is everything the dashboard shows for one server.
type ServerState struct {
	Server    models.Server `json:"server"`
	Metrics   *Metrics      `json:"metrics"`
	Source    Source        `json:"source,omitempty"`
	Defaulted []string      `json:"defaulted,omitempty"`
	Loading   bool          `json:"loading"`
	Error     string        `json:"error,omitempty"`

	Status      Status     `json:"status"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	LatencyMs   *int64     `json:"latency_ms,omitempty"`
}

type Snapshot struct {
	Servers     []ServerState `json:"servers"`
	LastRefresh *time.Time    `json:"last_refresh"`
}

// Caller issues one proxy call on behalf of the dashboard's user.
type Caller interface {
	Call(ctx context.Context, req proxy.Request) (*proxy.Response, error)
}

// ServerSource lists one user's servers and reports when that list changes.
type ServerSource interface {
	List(ctx context.Context) ([]models.Server, error)
	Subscribe(fn func()) (cancel func())
}
