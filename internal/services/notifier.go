package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans "this owner's server list changed" events out to
// subscribers. Callbacks run on the publisher's goroutine and must not block.
type Notifier interface {
	Publish(ctx context.Context, ownerID uuid.UUID)
	Subscribe(ownerID uuid.UUID, fn func()) (cancel func())
}

// LocalNotifier delivers events inside the current process.
type LocalNotifier struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[uuid.UUID]map[uint64]func()
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[uuid.UUID]map[uint64]func())}
}

func (n *LocalNotifier) Publish(_ context.Context, ownerID uuid.UUID) {
	n.mu.RLock()
	fns := make([]func(), 0, len(n.subs[ownerID]))
	for _, fn := range n.subs[ownerID] {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (n *LocalNotifier) Subscribe(ownerID uuid.UUID, fn func()) func() {
	n.mu.Lock()
	n.seq++
	id := n.seq
	if n.subs[ownerID] == nil {
		n.subs[ownerID] = make(map[uint64]func())
	}
	n.subs[ownerID][id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[ownerID], id)
			if len(n.subs[ownerID]) == 0 {
				delete(n.subs, ownerID)
			}
			n.mu.Unlock()
		})
	}
}

// Subscribers returns how many callbacks are registered for ownerID.
func (n *LocalNotifier) Subscribers(ownerID uuid.UUID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[ownerID])
}

// PublishAll delivers an event to every owner that currently has
// subscribers.
func (n *LocalNotifier) PublishAll(ctx context.Context) {
	n.mu.RLock()
	owners := make([]uuid.UUID, 0, len(n.subs))
	for ownerID := range n.subs {
		owners = append(owners, ownerID)
	}
	n.mu.RUnlock()

	for _, ownerID := range owners {
		n.Publish(ctx, ownerID)
	}
}
