package dashboard

import (
	"context"
	"sync"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/google/uuid"
)

type callFunc func(ctx context.Context, req proxy.Request) (*proxy.Response, error)

type fakeCaller struct {
	mu    sync.Mutex
	fn    callFunc
	calls []proxy.Request
}

func (f *fakeCaller) Call(ctx context.Context, req proxy.Request) (*proxy.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) requests() []proxy.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proxy.Request(nil), f.calls...)
}

func respond(status int, body string) callFunc {
	return func(context.Context, proxy.Request) (*proxy.Response, error) {
		return &proxy.Response{StatusCode: status, Body: []byte(body), ContentType: "application/json"}, nil
	}
}

func fail(err error) callFunc {
	return func(context.Context, proxy.Request) (*proxy.Response, error) {
		return nil, err
	}
}

type fakeSource struct {
	mu      sync.Mutex
	servers []models.Server
	subs    map[int]func()
	next    int
}

func newFakeSource(servers ...models.Server) *fakeSource {
	return &fakeSource{servers: servers, subs: make(map[int]func())}
}

func (f *fakeSource) List(context.Context) ([]models.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Server(nil), f.servers...), nil
}

func (f *fakeSource) Subscribe(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) set(servers ...models.Server) {
	f.mu.Lock()
	f.servers = servers
	subs := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func server(host string) models.Server {
	return models.Server{ID: uuid.New(), Nickname: host, Host: host, Port: 9100, IsActive: true}
}

const fullMetrics = `{"cpu":42.5,"memory":{"used":3,"total":8,"percentage":37.5},"disk":{"used":100,"total":256,"percentage":39.06},"uptime":3600,"loadAverage":[0.5,0.4,0.3]}`
