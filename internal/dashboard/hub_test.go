package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts HubOptions) (*Hub, *atomic.Int32) {
	t.Helper()
	var built atomic.Int32
	factory := func(userID uuid.UUID) (*Dashboard, error) {
		built.Add(1)
		return New(newFakeSource(server("a")), &fakeCaller{fn: respond(200, fullMetrics)}, Options{RefreshInterval: time.Hour})
	}
	h := NewHub(context.Background(), factory, opts)
	t.Cleanup(h.Close)
	return h, &built
}

func TestHubSharesDashboardPerUser(t *testing.T) {
	h, built := newTestHub(t, HubOptions{IdleTimeout: time.Minute})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	d1, release1, err := h.Acquire(ctx, alice)
	require.NoError(t, err)
	d2, release2, err := h.Acquire(ctx, alice)
	require.NoError(t, err)
	d3, release3, err := h.Acquire(ctx, bob)
	require.NoError(t, err)
	defer release1()
	defer release2()
	defer release3()

	assert.Same(t, d1, d2)
	assert.NotSame(t, d1, d3)
	assert.Equal(t, int32(2), built.Load())
	assert.Equal(t, 2, h.Running())

	got, ok := h.Get(alice)
	require.True(t, ok)
	assert.Same(t, d1, got)
}

func TestHubIdleTeardown(t *testing.T) {
	h, built := newTestHub(t, HubOptions{IdleTimeout: 30 * time.Millisecond})
	ctx := context.Background()
	user := uuid.New()

	d, release, err := h.Acquire(ctx, user)
	require.NoError(t, err)
	release()
	release()

	// re-acquired before the timeout: same dashboard
	again, release2, err := h.Acquire(ctx, user)
	require.NoError(t, err)
	assert.Same(t, d, again)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.Running())
	release2()

	require.Eventually(t, func() bool { return h.Running() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.Store().Closed())

	fresh, release3, err := h.Acquire(ctx, user)
	require.NoError(t, err)
	defer release3()
	assert.NotSame(t, d, fresh)
	assert.Equal(t, int32(2), built.Load())
}

func TestHubRefreshIntervals(t *testing.T) {
	prefs := map[uuid.UUID]int{}
	alice, bob := uuid.New(), uuid.New()
	prefs[alice] = 30

	h, _ := newTestHub(t, HubOptions{
		IdleTimeout:     time.Minute,
		RefreshInterval: 10 * time.Second,
		RefreshSeconds: func(_ context.Context, userID uuid.UUID) (int, error) {
			return prefs[userID], nil
		},
	})
	ctx := context.Background()

	da, ra, err := h.Acquire(ctx, alice)
	require.NoError(t, err)
	defer ra()
	db, rb, err := h.Acquire(ctx, bob)
	require.NoError(t, err)
	defer rb()

	assert.Equal(t, 30*time.Second, da.Poller().Interval())
	assert.Equal(t, 10*time.Second, db.Poller().Interval())

	h.SetRefreshInterval(20 * time.Second)
	assert.Equal(t, 30*time.Second, da.Poller().Interval())
	assert.Equal(t, 20*time.Second, db.Poller().Interval())

	h.ApplyPreferences(bob, 5)
	assert.Equal(t, 5*time.Second, db.Poller().Interval())

	h.ApplyPreferences(alice, 0)
	assert.Equal(t, 20*time.Second, da.Poller().Interval())
}

func TestHubFactoryError(t *testing.T) {
	h := NewHub(context.Background(), func(uuid.UUID) (*Dashboard, error) {
		return nil, errors.New("no database")
	}, HubOptions{})
	defer h.Close()

	_, _, err := h.Acquire(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Zero(t, h.Running())
}

func TestHubClose(t *testing.T) {
	h, _ := newTestHub(t, HubOptions{})
	d, release, err := h.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)

	h.Close()
	release()
	assert.True(t, d.Store().Closed())
	assert.Zero(t, h.Running())

	_, _, err = h.Acquire(context.Background(), uuid.New())
	assert.Error(t, err)
}

// blockingSource holds List until unblocked.
type blockingSource struct {
	*fakeSource
	entered chan struct{}
	unblock chan struct{}
}

func (b *blockingSource) List(ctx context.Context) ([]models.Server, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.unblock:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.fakeSource.List(ctx)
}

func TestHubSlowStartDoesNotBlockOtherUsers(t *testing.T) {
	slowUser, fastUser := uuid.New(), uuid.New()
	slow := &blockingSource{
		fakeSource: newFakeSource(server("slow")),
		entered:    make(chan struct{}, 1),
		unblock:    make(chan struct{}),
	}
	var built atomic.Int32
	factory := func(userID uuid.UUID) (*Dashboard, error) {
		built.Add(1)
		var src ServerSource = newFakeSource(server("fast"))
		if userID == slowUser {
			src = slow
		}
		return New(src, &fakeCaller{fn: respond(200, fullMetrics)}, Options{RefreshInterval: time.Hour})
	}
	h := NewHub(context.Background(), factory, HubOptions{IdleTimeout: time.Minute})
	t.Cleanup(h.Close)

	type result struct {
		dash    *Dashboard
		release func()
		err     error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)
	go func() {
		d, r, err := h.Acquire(context.Background(), slowUser)
		first <- result{d, r, err}
	}()
	<-slow.entered
	go func() {
		d, r, err := h.Acquire(context.Background(), slowUser)
		second <- result{d, r, err}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, release, err := h.Acquire(context.Background(), fastUser)
		if assert.NoError(t, err) {
			release()
		}
		h.SetRefreshInterval(time.Minute)
		h.ApplyPreferences(fastUser, 30)
		_, _ = h.Get(slowUser)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub blocked while another user's dashboard was starting")
	}
	assert.Equal(t, 1, h.Running())

	close(slow.unblock)
	a, b := <-first, <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	defer a.release()
	defer b.release()
	assert.Same(t, a.dash, b.dash)
	assert.Equal(t, int32(2), built.Load())
	assert.Equal(t, 2, h.Running())
}
