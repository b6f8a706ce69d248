package client

import (
	"context"
	"sync"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
)

// Source is a dashboard server source backed by the API. There is no push
// feed over HTTP, so subscribers are nudged every Interval and the
// dashboard diffs the list itself.
type Source struct {
	Client   *Client
	Interval time.Duration
}

func (s Source) List(ctx context.Context) ([]models.Server, error) {
	return s.Client.Servers(ctx)
}

func (s Source) Subscribe(fn func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
