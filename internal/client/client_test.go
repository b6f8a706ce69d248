package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Token: token, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Invalid email or password"}`)
			return
		}
		io.WriteString(w, `{"access_token":"a","refresh_token":"r","user":{"email":"ada@example.com"}}`)
	}, "")

	tokens, err := c.Login(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "a", tokens.AccessToken)
	assert.Equal(t, "ada@example.com", tokens.User.Email)

	_, err = c.Login(context.Background(), "ada@example.com", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestServers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `{"servers":[{"id":"7f1c0b1e-7c35-4a53-9a52-4f0d6f0f8e11","nickname":"web-1","host":"10.0.0.5","port":3000,"is_active":true}]}`)
	}, "tok")

	servers, err := c.Servers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "web-1", servers[0].Nickname)
	assert.Equal(t, 3000, servers[0].Port)
}

func TestServersUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "stale")

	_, err := c.Servers(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCallPassesUpstreamStatusThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/proxy", r.URL.Path)
		var req proxy.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "srv", req.ServerID)
		assert.Equal(t, "/health", req.Endpoint)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "down")
	}, "tok")

	resp, err := c.Call(context.Background(), proxy.Request{ServerID: "srv", Endpoint: "/health"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "down", string(resp.Body))
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.False(t, resp.OK())
}

func TestCallUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"unauthorized"}`)
	}, "")

	_, err := c.Call(context.Background(), proxy.Request{ServerID: "srv"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSourceSubscribe(t *testing.T) {
	s := Source{Interval: 10 * time.Millisecond}
	var calls atomic.Int32
	cancel := s.Subscribe(func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	cancel()
	settled := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), settled+1)
}

func TestRefreshAndSetToken(t *testing.T) {
	var seen atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			io.WriteString(w, `{"access_token":"fresh","refresh_token":"r2"}`)
		default:
			seen.Store(r.Header.Get("Authorization"))
			io.WriteString(w, `{"servers":[]}`)
		}
	}, "old")

	tokens, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	c.SetToken(tokens.AccessToken)

	_, err = c.Servers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", seen.Load())
}
