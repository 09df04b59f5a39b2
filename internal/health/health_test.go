// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManagerHealth(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	m.RegisterChecker(&mockChecker{name: "loop", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "control", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "bot_1", resp.BotID)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManagerReady(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	assert.True(t, m.Ready(context.Background()).Ready)

	m.RegisterChecker(&mockChecker{name: "control", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready, "degraded is still ready")
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "loop", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

type slowChecker struct{}

func (slowChecker) Name() string { return "store" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
}

func TestManagerBoundsSlowCheckers(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	m.RegisterChecker(slowChecker{})
	m.RegisterChecker(&mockChecker{name: "loop", status: StatusHealthy})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp := m.Ready(ctx)
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Checks["loop"].Status)
	assert.Contains(t, resp.Checks["store"].Error, "deadline exceeded")
}

func TestHealthReportsBotState(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	assert.Empty(t, m.Health(context.Background(), false).BotState)
	m.ReportState(func() string { return "joined_recording" })
	assert.Equal(t, "joined_recording", m.Health(context.Background(), false).BotState)
}

func TestLastBeatChecker(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	var last time.Time
	c := NewLastBeatChecker("loop", func() time.Time { return last }, 5*time.Second)
	c.now = func() time.Time { return now }

	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	last = now.Add(-time.Second)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	last = now.Add(-time.Minute)
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "1m0s")
}

func TestConnectedChecker(t *testing.T) {
	up := false
	c := NewConnectedChecker("control", func() bool { return up })
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
	up = true
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestRouter(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	m.RegisterChecker(&mockChecker{name: "loop", status: StatusUnhealthy})
	srv := httptest.NewServer(NewRouter(m, ServerConfig{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, StatusHealthy, health.Status)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestRouterRateLimit(t *testing.T) {
	m := NewManager("v1.0.0", "bot_1")
	srv := httptest.NewServer(NewRouter(m, ServerConfig{RequestsPerMinute: 2}))
	defer srv.Close()

	codes := make([]int, 0, 3)
	for range 3 {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServerServeAndShutdown(t *testing.T) {
	s, err := Listen(NewManager("v1.0.0", "bot_1"), ServerConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
