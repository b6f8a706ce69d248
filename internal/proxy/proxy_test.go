package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity map[string]uuid.UUID

func (f fakeIdentity) Verify(_ context.Context, token string) (uuid.UUID, error) {
	id, ok := f[token]
	if !ok {
		return uuid.Nil, errors.New("invalid token")
	}
	return id, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.ConnectionHistory
	failOn  map[string]bool // status -> fail
}

func (m *memoryAudit) Append(_ context.Context, entry *models.ConnectionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[entry.Status] {
		return errors.New("audit store down")
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAudit) all() []models.ConnectionHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ConnectionHistory(nil), m.entries...)
}

type fakeServers map[uuid.UUID]models.Server

func (f fakeServers) Get(_ context.Context, ownerID, id uuid.UUID) (*models.Server, error) {
	s, ok := f[id]
	if !ok || s.OwnerID != ownerID {
		return nil, services.ErrServerNotFound
	}
	return &s, nil
}

type fixture struct {
	svc      *Service
	audit    *memoryAudit
	servers  fakeServers
	owner    uuid.UUID
	token    string
	upstream *httptest.Server
	hits     *atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{
		audit:   &memoryAudit{},
		servers: fakeServers{},
		owner:   uuid.New(),
		token:   "good-token",
		hits:    &atomic.Int32{},
	}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.upstream.Close)

	identity := fakeIdentity{f.token: f.owner}
	f.svc = NewService(identity, NewResolver(f.servers), f.audit, Options{Timeout: 2 * time.Second})
	return f
}

func (f *fixture) addServer(owner uuid.UUID, endpoint string) uuid.UUID {
	id := uuid.New()
	f.servers[id] = models.Server{ID: id, OwnerID: owner, Nickname: "n", Host: "unused", Port: 22, APIEndpoint: &endpoint}
	return id
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestProxyRejectsMissingOrInvalidToken(t *testing.T) {
	f := newFixture(t, okHandler(`{}`))
	id := f.addServer(f.owner, f.upstream.URL)

	for _, token := range []string{"", "  ", "forged"} {
		_, err := f.svc.Proxy(context.Background(), token, Request{ServerID: id.String(), Endpoint: "/metrics"})
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, http.StatusUnauthorized, StatusFor(err))
	}
	assert.Empty(t, f.audit.all())
	assert.Zero(t, f.hits.Load())
}

func TestProxyNotFoundIsIndistinguishable(t *testing.T) {
	f := newFixture(t, okHandler(`{}`))
	foreign := f.addServer(uuid.New(), f.upstream.URL)

	var messages []string
	for _, serverID := range []string{foreign.String(), uuid.NewString(), "abc"} {
		_, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: serverID, Endpoint: "/metrics"})
		require.ErrorIs(t, err, ErrNotFoundOrDenied)
		assert.Equal(t, http.StatusNotFound, StatusFor(err))
		messages = append(messages, PublicMessage(err))
	}
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
	assert.Empty(t, f.audit.all())
	assert.Zero(t, f.hits.Load())
}

func TestProxyWritesPendingThenSuccess(t *testing.T) {
	long := `"` + strings.Repeat("é", 12000) + `"`
	f := newFixture(t, okHandler(long))
	id := f.addServer(f.owner, f.upstream.URL)

	resp, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String(), Endpoint: "/metrics"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, long, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)

	entries := f.audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.HistoryPending, entries[0].Status)
	assert.Nil(t, entries[0].Response)
	assert.Equal(t, models.HistorySuccess, entries[1].Status)
	for _, e := range entries {
		assert.Equal(t, f.owner, e.UserID)
		require.NotNil(t, e.ServerID)
		assert.Equal(t, id, *e.ServerID)
		assert.Equal(t, "GET "+f.upstream.URL+"/metrics", e.Command)
	}
	require.NotNil(t, entries[1].Response)
	assert.Equal(t, 10000, len([]rune(*entries[1].Response)))
	assert.True(t, strings.HasPrefix(long, *entries[1].Response))
}

func TestProxyPassesThroughUpstreamErrors(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "maintenance")
	})
	id := f.addServer(f.owner, f.upstream.URL)

	resp, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String(), Endpoint: "/health"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "maintenance", string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)

	entries := f.audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.HistoryError, entries[1].Status)
	assert.Equal(t, "maintenance", *entries[1].Response)
}

func TestProxyUnreachableUpstream(t *testing.T) {
	f := newFixture(t, okHandler(`{}`))
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	id := f.addServer(f.owner, deadURL)

	_, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String(), Endpoint: "/health"})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, deadURL+"/health", upstream.URL)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))
	assert.Contains(t, PublicMessage(err), "unreachable")

	entries := f.audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.HistoryPending, entries[0].Status)
	assert.Equal(t, models.HistoryError, entries[1].Status)
	require.NotNil(t, entries[1].Response)
	assert.NotEmpty(t, *entries[1].Response)
}

func TestProxyTimeout(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	f.svc = NewService(fakeIdentity{f.token: f.owner}, NewResolver(f.servers), f.audit, Options{Timeout: 50 * time.Millisecond})
	id := f.addServer(f.owner, f.upstream.URL)

	_, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String()})
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Len(t, f.audit.all(), 2)
}

func TestProxyPendingWriteFailureAbortsDispatch(t *testing.T) {
	f := newFixture(t, okHandler(`{}`))
	f.audit.failOn = map[string]bool{models.HistoryPending: true}
	id := f.addServer(f.owner, f.upstream.URL)

	_, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String()})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Zero(t, f.hits.Load())
}

func TestProxyFinalWriteFailureStillReturnsResponse(t *testing.T) {
	f := newFixture(t, okHandler(`{"cpu":1}`))
	f.audit.failOn = map[string]bool{models.HistorySuccess: true}
	id := f.addServer(f.owner, f.upstream.URL)

	resp, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String(), Endpoint: "/metrics"})
	require.NoError(t, err)
	assert.Equal(t, `{"cpu":1}`, string(resp.Body))
	assert.Len(t, f.audit.all(), 1)
}

func TestProxyForwardsMethodHeadersAndBody(t *testing.T) {
	type seen struct {
		method, contentType, custom, body string
	}
	got := make(chan seen, 4)
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- seen{r.Method, r.Header.Get("Content-Type"), r.Header.Get("X-Custom"), string(b)}
	})
	id := f.addServer(f.owner, f.upstream.URL)
	ctx := context.Background()

	_, err := f.svc.Proxy(ctx, f.token, Request{
		ServerID: id.String(),
		Endpoint: "/exec",
		Method:   "post",
		Body:     []byte(`{"cmd":"uptime"}`),
		Headers:  map[string]string{"X-Custom": "1"},
	})
	require.NoError(t, err)
	s := <-got
	assert.Equal(t, "POST", s.method)
	assert.Equal(t, "application/json", s.contentType)
	assert.Equal(t, "1", s.custom)
	assert.Equal(t, `{"cmd":"uptime"}`, s.body)

	_, err = f.svc.Proxy(ctx, f.token, Request{
		ServerID: id.String(),
		Method:   "PUT",
		Body:     []byte("null"),
		Headers:  map[string]string{"content-type": "text/plain"},
	})
	require.NoError(t, err)
	s = <-got
	assert.Equal(t, "PUT", s.method)
	assert.Equal(t, "text/plain", s.contentType)
	assert.Empty(t, s.body)

	_, err = f.svc.Proxy(ctx, f.token, Request{
		ServerID: id.String(),
		Headers:  map[string]string{"Content-Type": ""},
	})
	require.NoError(t, err)
	s = <-got
	assert.Equal(t, "GET", s.method)
	assert.Equal(t, "application/json", s.contentType)
}

func TestProxyRejectsUnsupportedMethod(t *testing.T) {
	f := newFixture(t, okHandler(`{}`))
	id := f.addServer(f.owner, f.upstream.URL)

	_, err := f.svc.Proxy(context.Background(), f.token, Request{ServerID: id.String(), Method: "TRACE"})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, http.StatusBadRequest, StatusFor(err))
	assert.Empty(t, f.audit.all())
	assert.Zero(t, f.hits.Load())
}

func TestProxyDirectEndpoint(t *testing.T) {
	f := newFixture(t, okHandler(`{"ok":true}`))
	ctx := context.Background()

	resp, err := f.svc.Proxy(ctx, f.token, Request{Endpoint: f.upstream.URL + "/health"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	entries := f.audit.all()
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].ServerID)

	for _, endpoint := range []string{"", "/health", "ftp://host/x"} {
		_, err = f.svc.Proxy(ctx, f.token, Request{Endpoint: endpoint})
		assert.ErrorIs(t, err, ErrNoTarget)
		assert.Equal(t, http.StatusBadRequest, StatusFor(err))
	}
	assert.Len(t, f.audit.all(), 2)
}

func TestUserCaller(t *testing.T) {
	f := newFixture(t, okHandler(`{"cpu":5}`))
	id := f.addServer(f.owner, f.upstream.URL)

	caller := UserCaller{Service: f.svc, UserID: f.owner}
	resp, err := caller.Call(context.Background(), Request{ServerID: id.String(), Endpoint: "/metrics"})
	require.NoError(t, err)
	assert.True(t, resp.OK())

	other := UserCaller{Service: f.svc, UserID: uuid.New()}
	_, err = other.Call(context.Background(), Request{ServerID: id.String(), Endpoint: "/metrics"})
	assert.ErrorIs(t, err, ErrNotFoundOrDenied)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "żó", Truncate("żółw", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
