// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
)

// MaxPortAttempts bounds the search for a free listener port.
const MaxPortAttempts = 10

// ErrNoFreePort is returned when every candidate port is taken.
var ErrNoFreePort = errors.New("webbot: no free websocket port")

// Listener is the local websocket server the injected page script streams
// media and status messages to.
type Listener struct {
	basePort int
	host     string
	handle   func(data []byte)
	logger   zerolog.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
	port     int

	lastFrame atomic.Int64
	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
	wg        sync.WaitGroup
}

// NewListener creates a listener that will try basePort first. handle is
// called for every binary message, possibly from several connections.
func NewListener(botID string, basePort int, handle func(data []byte)) *Listener {
	return &Listener{
		basePort: basePort,
		host:     "127.0.0.1",
		handle:   handle,
		logger:   log.WithBot("webbot.listener", botID),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(*http.Request) bool { return true },
			EnableCompression: false,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Start binds the first free port from basePort upward and serves in the
// background.
func (l *Listener) Start() error {
	ln, port, err := l.bind()
	if err != nil {
		return err
	}
	l.port = port
	l.srv = &http.Server{
		Handler:           http.HandlerFunc(l.serveWS),
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error().Err(err).Str(log.FieldEvent, "webbot.listener_failed").Msg("websocket server stopped")
		}
	}()
	l.logger.Info().Str(log.FieldEvent, "webbot.listener_started").Int(log.FieldPort, port).Msg("websocket server listening")
	return nil
}

func (l *Listener) bind() (net.Listener, int, error) {
	port := l.basePort
	for attempt := 0; attempt < MaxPortAttempts; attempt++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(l.host, strconv.Itoa(port)))
		if err == nil {
			return ln, ln.Addr().(*net.TCPAddr).Port, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("webbot: listen on %d: %w", port, err)
		}
		l.logger.Info().Int(log.FieldPort, port).Msg("port in use, trying next port")
		port++
	}
	return nil, 0, fmt.Errorf("%w after %d attempts from %d", ErrNoFreePort, MaxPortAttempts, l.basePort)
}

// Port is the bound port; zero before Start.
func (l *Listener) Port() int { return l.port }

// LastFrameAt is when the last message arrived, or zero.
func (l *Listener) LastFrameAt() time.Time {
	ns := l.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (l *Listener) serveWS(w http.ResponseWriter, r *http.Request) {
	l.wg.Add(1)
	defer l.wg.Done()
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		_ = conn.Close()
	}()

	l.logger.Info().Str(log.FieldEvent, "webbot.page_connected").Str("remote", r.RemoteAddr).Msg("page connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Info().Err(err).Msg("page connection closed")
			}
			return
		}
		l.handle(data)
		l.lastFrame.Store(time.Now().UnixNano())
	}
}

// Shutdown stops accepting connections and closes open ones.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	err := l.srv.Shutdown(ctx)
	l.mu.Lock()
	for c := range l.conns {
		_ = c.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
	return err
}
