package dashboard

import (
	"sync"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
)

// Store is the only shared mutable state of a dashboard. Every change is a
// merge keyed by server id so concurrent refreshes of different servers
// never overwrite each other.
type Store struct {
	mu          sync.RWMutex
	order       []uuid.UUID
	states      map[uuid.UUID]ServerState
	lastRefresh *time.Time
	closed      bool

	seq      uint64
	watchers map[uint64]chan struct{}
}

func NewStore() *Store {
	return &Store{
		states:   make(map[uuid.UUID]ServerState),
		watchers: make(map[uint64]chan struct{}),
	}
}

// Sync replaces the tracked set with servers, in the given order. Known ids
// keep their metrics and status with the record refreshed; ids no longer
// listed are dropped. It returns the ids that were not tracked before.
func (s *Store) Sync(servers []models.Server) []uuid.UUID {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	var added []uuid.UUID
	next := make(map[uuid.UUID]ServerState, len(servers))
	order := make([]uuid.UUID, 0, len(servers))
	for _, server := range servers {
		state, ok := s.states[server.ID]
		if !ok {
			state = ServerState{Status: StatusUnknown}
			added = append(added, server.ID)
		}
		state.Server = server
		next[server.ID] = state
		order = append(order, server.ID)
	}
	s.states = next
	s.order = order
	s.mu.Unlock()

	s.notify()
	return added
}

// Update applies fn to the state of id. It is a no-op, returning false, when
// id is not tracked or the store is closed.
func (s *Store) Update(id uuid.UUID, fn func(ServerState) ServerState) bool {
	s.mu.Lock()
	state, ok := s.states[id]
	if !ok || s.closed {
		s.mu.Unlock()
		return false
	}
	s.states[id] = fn(state)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) Get(id uuid.UUID) (ServerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	return state, ok
}

// IDs returns the tracked ids in display order.
func (s *Store) IDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uuid.UUID(nil), s.order...)
}

// ActiveIDs returns the tracked ids whose server is enabled.
func (s *Store) ActiveIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.order))
	for _, id := range s.order {
		if s.states[id].Server.IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) SetLastRefresh(t time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastRefresh = &t
	s.mu.Unlock()

	s.notify()
}

func (s *Store) LastRefresh() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Servers: make([]ServerState, 0, len(s.order))}
	for _, id := range s.order {
		snap.Servers = append(snap.Servers, s.states[id])
	}
	if s.lastRefresh != nil {
		t := *s.lastRefresh
		snap.LastRefresh = &t
	}
	return snap
}

// Watch returns a channel that receives a value after changes. Bursts are
// coalesced; readers should take a fresh Snapshot on each receive. The
// channel is closed by cancel or when the store closes.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.seq++
	id := s.seq
	s.watchers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
}

// Close drops every later update and ends all watches.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w)
	}
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
