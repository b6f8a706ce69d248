package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/google/uuid"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultResponseLimit = 10000
	defaultContentType   = "application/json"
)

// IdentityProvider verifies a bearer token and returns the caller's id.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}

// AuditSink receives connection history rows. It is append-only.
type AuditSink interface {
	Append(ctx context.Context, entry *models.ConnectionHistory) error
}

type Options struct {
	// Timeout bounds each outbound call. Zero means DefaultTimeout.
	Timeout time.Duration
	// ResponseLimit caps the response text stored in history, in runes.
	ResponseLimit int
	// Client overrides the outbound client; its Timeout is left alone.
	Client  *http.Client
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Service authenticates proxy calls, forwards them to the resolved target
// and records a pending and a final history row around every dispatch.
type Service struct {
	identity IdentityProvider
	resolver *Resolver
	audit    AuditSink
	client   *http.Client
	limit    int
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewService(identity IdentityProvider, resolver *Resolver, audit AuditSink, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ResponseLimit <= 0 {
		opts.ResponseLimit = DefaultResponseLimit
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "proxy")
	}
	return &Service{
		identity: identity,
		resolver: resolver,
		audit:    audit,
		client:   client,
		limit:    opts.ResponseLimit,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Proxy verifies token and forwards req on the caller's behalf. Nothing is
// resolved, dispatched or recorded for an unauthenticated caller.
func (s *Service) Proxy(ctx context.Context, token string, req Request) (*Response, error) {
	userID, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Forward(ctx, userID, req)
}

// Authenticate resolves token to a user id or returns ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if strings.TrimSpace(token) == "" || s.identity == nil {
		s.metrics.ProxyRequest("rejected")
		return uuid.Nil, ErrUnauthenticated
	}
	userID, err := s.identity.Verify(ctx, token)
	if err != nil || userID == uuid.Nil {
		s.metrics.ProxyRequest("rejected")
		return uuid.Nil, ErrUnauthenticated
	}
	return userID, nil
}

// Forward is Proxy for an already authenticated user.
func (s *Service) Forward(ctx context.Context, userID uuid.UUID, req Request) (*Response, error) {
	target, err := s.resolver.Resolve(ctx, userID, req.ServerID, req.Endpoint)
	if err != nil {
		s.metrics.ProxyRequest("rejected")
		return nil, err
	}
	if target == "" {
		s.metrics.ProxyRequest("rejected")
		return nil, ErrNoTarget
	}

	method, ok := normalizeMethod(req.Method)
	if !ok {
		s.metrics.ProxyRequest("rejected")
		return nil, fmt.Errorf("%w: unsupported method %q", ErrBadRequest, req.Method)
	}

	outbound, err := s.buildRequest(ctx, method, target, req)
	if err != nil {
		s.metrics.ProxyRequest("rejected")
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var serverID *uuid.UUID
	if req.ServerID != "" {
		if id, err := uuid.Parse(strings.TrimSpace(req.ServerID)); err == nil {
			serverID = &id
		}
	}
	command := method + " " + target

	if err := s.audit.Append(ctx, &models.ConnectionHistory{
		UserID:   userID,
		ServerID: serverID,
		Command:  command,
		Status:   models.HistoryPending,
	}); err != nil {
		s.metrics.AuditFailure()
		return nil, fmt.Errorf("record pending history: %w", err)
	}

	// The final row is written even if the caller went away mid-flight.
	auditCtx := context.WithoutCancel(ctx)

	start := time.Now()
	resp, err := s.client.Do(outbound)
	if err != nil {
		s.metrics.UpstreamDuration(method, time.Since(start))
		s.metrics.ProxyRequest("unreachable")
		s.record(auditCtx, userID, serverID, command, err.Error(), models.HistoryError)
		s.logger.Warn("Upstream unreachable", "user_id", userID, "target", target, "error", err)
		return nil, &UpstreamError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	s.metrics.UpstreamDuration(method, time.Since(start))
	if err != nil {
		s.metrics.ProxyRequest("unreachable")
		s.record(auditCtx, userID, serverID, command, err.Error(), models.HistoryError)
		return nil, &UpstreamError{URL: target, Err: err}
	}

	result := &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if result.ContentType == "" {
		result.ContentType = defaultContentType
	}

	status := models.HistorySuccess
	outcome := "success"
	if !result.OK() {
		status = models.HistoryError
		outcome = "upstream_status"
	}
	s.metrics.ProxyRequest(outcome)
	s.record(auditCtx, userID, serverID, command, string(body), status)

	return result, nil
}

func (s *Service) buildRequest(ctx context.Context, method, target string, req Request) (*http.Request, error) {
	var body io.Reader
	if hasBody(req.Body) {
		body = bytes.NewReader(req.Body)
	}

	outbound, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	outbound.Header.Set("Content-Type", defaultContentType)
	for key, value := range req.Headers {
		if value == "" && strings.EqualFold(key, "Content-Type") {
			continue
		}
		outbound.Header.Set(key, value)
	}
	return outbound, nil
}

// record writes a final history row. A failure here is logged only; the
// upstream response still reaches the caller.
func (s *Service) record(ctx context.Context, userID uuid.UUID, serverID *uuid.UUID, command, response, status string) {
	text := Truncate(response, s.limit)
	if err := s.audit.Append(ctx, &models.ConnectionHistory{
		UserID:   userID,
		ServerID: serverID,
		Command:  command,
		Response: &text,
		Status:   status,
	}); err != nil {
		s.metrics.AuditFailure()
		s.logger.Error("Failed to record history", "user_id", userID, "command", command, "error", err)
	}
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// UserCaller binds a Service to one user so the dashboard can issue calls
// without holding a token.
type UserCaller struct {
	Service *Service
	UserID  uuid.UUID
}

func (c UserCaller) Call(ctx context.Context, req Request) (*Response, error) {
	return c.Service.Forward(ctx, c.UserID, req)
}
