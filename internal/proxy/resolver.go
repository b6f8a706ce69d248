package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/google/uuid"
)

// ServerLookup is the read-only slice of the registry the resolver needs.
type ServerLookup interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Server, error)
}

// Resolver turns a logical server id into the URL the proxy dials. It keeps
// no state between calls.
type Resolver struct {
	servers ServerLookup
}

func NewResolver(servers ServerLookup) *Resolver {
	return &Resolver{servers: servers}
}

// Resolve returns the target URL for serverID scoped to userID, with
// endpoint appended. Without a server id, endpoint must itself be an
// absolute http(s) URL.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, serverID, endpoint string) (string, error) {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		if !isAbsoluteHTTP(endpoint) {
			return "", ErrNoTarget
		}
		return strings.TrimSpace(endpoint), nil
	}

	id, err := uuid.Parse(serverID)
	if err != nil {
		return "", ErrNotFoundOrDenied
	}

	server, err := r.servers.Get(ctx, userID, id)
	if errors.Is(err, services.ErrServerNotFound) {
		return "", ErrNotFoundOrDenied
	}
	if err != nil {
		return "", fmt.Errorf("resolve server %s: %w", id, err)
	}

	base := BaseURL(server)
	if base == "" {
		return "", ErrNoTarget
	}
	return join(base, endpoint), nil
}

// BaseURL is the configured API endpoint, or http://host:port when none is
// set. It returns "" for a record with neither.
func BaseURL(server *models.Server) string {
	if endpoint := server.Endpoint(); endpoint != "" {
		return endpoint
	}
	host := strings.TrimSpace(server.Host)
	if host == "" {
		return ""
	}
	port := server.Port
	if port == 0 {
		port = models.DefaultServerPort
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func join(base, endpoint string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/") {
		return base + endpoint[1:]
	}
	return base + endpoint
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
