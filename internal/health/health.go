// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health serves liveness and readiness probes for a bot process.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/meetbot/internal/log"
)

// Status is the outcome of one check or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// checkTimeout bounds a single checker so one stuck dependency cannot hang
// the probe.
const checkTimeout = 2 * time.Second

// CheckResult is what a Checker reports.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	BotID     string                 `json:"bot_id,omitempty"`
	BotState  string                 `json:"bot_state,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the /readyz body.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one dependency of the bot.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates checkers for one bot process.
type Manager struct {
	version string
	botID   string
	started time.Time
	now     func() time.Time

	mu       sync.RWMutex
	checkers []Checker
	state    func() string
}

// NewManager creates a manager for botID.
func NewManager(version, botID string) *Manager {
	return &Manager{
		version: version,
		botID:   botID,
		started: time.Now(),
		now:     time.Now,
	}
}

// RegisterChecker adds a checker. Names should be unique; a later checker
// with the same name hides the earlier one in responses.
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// ReportState makes /healthz include the bot's lifecycle state.
func (m *Manager) ReportState(state func() string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// runChecks runs every checker concurrently, each under checkTimeout.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, checkTimeout)
			defer cancel()
			results[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	byName := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy
	for i, c := range checkers {
		r := results[i]
		byName[c.Name()] = r
		overall = worse(overall, r.Status)
	}
	return byName, overall
}

func worse(a, b Status) Status {
	switch {
	case a == StatusUnhealthy || b == StatusUnhealthy:
		return StatusUnhealthy
	case a == StatusDegraded || b == StatusDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Health answers liveness. Answering at all means alive; component checks
// only run when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	now := m.now()
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		BotID:     m.botID,
		Timestamp: now,
		Uptime:    int64(now.Sub(m.started).Seconds()),
	}
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != nil {
		resp.BotState = state()
	}
	if verbose {
		checks, status := m.runChecks(ctx)
		resp.Status = status
		if len(checks) > 0 {
			resp.Checks = checks
		}
	}
	return resp
}

// Ready answers readiness. Degraded components keep the bot ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checks, status := m.runChecks(ctx)
	resp := ReadinessResponse{
		Ready:     status != StatusUnhealthy,
		Status:    status,
		Timestamp: m.now(),
	}
	if len(checks) > 0 {
		resp.Checks = checks
	}
	return resp
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Str("path", r.URL.Path).Msg("failed to encode probe response")
	}
}

// ServeHealth handles GET /healthz. ?verbose=true runs the checkers.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, m.Health(r.Context(), r.URL.Query().Get("verbose") == "true"))
}

// ServeReady handles GET /readyz and answers 503 when not ready.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Debug().
			Str(log.FieldEvent, "readiness.failed").
			Str("status", string(resp.Status)).
			Msg("bot not ready")
	}
	writeJSON(w, r, code, resp)
}
