package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestRenderSnapshot(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	last := now.Add(-30 * time.Second)
	latency := int64(42)

	snap := dashboard.Snapshot{
		LastRefresh: &last,
		Servers: []dashboard.ServerState{
			{
				Server:    models.Server{ID: uuid.New(), Nickname: "web-1"},
				Metrics:   &dashboard.Metrics{CPU: 12.5, Memory: models.Usage{Percentage: 25}, Disk: models.Usage{Percentage: 50}},
				Source:    dashboard.SourceLive,
				Status:    dashboard.StatusOnline,
				LatencyMs: &latency,
			},
			{
				Server: models.Server{ID: uuid.New(), Nickname: "db-1"},
				Source: dashboard.SourceFallback,
				Status: dashboard.StatusUnknown,
				Error:  "No API endpoint configured",
			},
		},
	}

	var buf bytes.Buffer
	renderSnapshot(&buf, snap, now)
	out := buf.String()

	assert.Contains(t, out, "2 servers")
	assert.Contains(t, out, "last refresh 30s ago")
	assert.Contains(t, out, "web-1")
	assert.Contains(t, out, "12.5%")
	assert.Contains(t, out, "42ms")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "db-1: No API endpoint configured")
}

func TestRenderEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	renderSnapshot(&buf, dashboard.Snapshot{}, time.Now())
	assert.Contains(t, buf.String(), "last refresh never")
	assert.Contains(t, buf.String(), "No servers registered")
}

func TestPrintServers(t *testing.T) {
	endpoint := "https://agent.example.com"
	servers := []models.Server{
		{ID: uuid.New(), Nickname: "web-1", Host: "10.0.0.5", Port: 3000, IsActive: true},
		{ID: uuid.New(), Nickname: "api", Host: "10.0.0.6", APIEndpoint: &endpoint},
	}
	var buf bytes.Buffer
	printServers(&buf, servers)
	out := buf.String()
	assert.Contains(t, out, "http://10.0.0.5:3000")
	assert.Contains(t, out, "https://agent.example.com")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}
