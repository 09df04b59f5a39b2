// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/procgroup"
)

// ErrRelayDown is returned by Write after the relay process exited.
var ErrRelayDown = errors.New("rtmp relay is not running")

// RTMPClient relays an encoded stream to an RTMP destination through an
// ffmpeg child process fed on stdin.
type RTMPClient struct {
	URL string
	// BinPath defaults to "ffmpeg".
	BinPath string
	// Args overrides the ffmpeg arguments; used by tests.
	Args []string
	// Grace bounds both the wait after closing stdin and after SIGTERM.
	Grace time.Duration

	logger zerolog.Logger
	ring   *LineRing

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	waitCh  chan error
	exited  chan struct{}
	running atomic.Bool
	exitErr error
}

// NewRTMPClient builds a relay for url.
func NewRTMPClient(url string) *RTMPClient {
	return &RTMPClient{
		URL:     url,
		BinPath: "ffmpeg",
		Grace:   5 * time.Second,
		logger:  log.WithComponent("rtmp"),
		ring:    NewLineRing(50),
	}
}

func (c *RTMPClient) args() []string {
	if c.Args != nil {
		return c.Args
	}
	return []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", "pipe:0",
		"-c:v", "libx264", "-preset", "veryfast", "-tune", "zerolatency",
		"-c:a", "aac", "-ar", "44100",
		"-f", "flv", c.URL,
	}
}

// Start launches the relay process.
func (c *RTMPClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, c.BinPath, c.args()...) // #nosec G204
	procgroup.Set(cmd)
	cmd.Stderr = c.ring
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("rtmp stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("rtmp relay start failed: %w", err)
	}
	c.cmd = cmd
	c.stdin = stdin
	c.waitCh = make(chan error, 1)
	c.exited = make(chan struct{})
	c.running.Store(true)

	go func() {
		err := cmd.Wait()
		c.running.Store(false)
		c.mu.Lock()
		c.exitErr = err
		c.mu.Unlock()
		close(c.exited)
		c.waitCh <- err
	}()

	c.logger.Info().Str(log.FieldEvent, "rtmp.started").Int("pid", cmd.Process.Pid).Msg("rtmp relay started")
	return nil
}

// Write sends an encoded chunk to the relay.
func (c *RTMPClient) Write(chunk []byte) error {
	if !c.running.Load() {
		return ErrRelayDown
	}
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if _, err := stdin.Write(chunk); err != nil {
		return fmt.Errorf("rtmp write: %w", err)
	}
	return nil
}

// IsRunning reports whether the relay process is alive.
func (c *RTMPClient) IsRunning() bool { return c.running.Load() }

// Exited is closed when the relay process ends.
func (c *RTMPClient) Exited() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// LastStderr returns recent ffmpeg output.
func (c *RTMPClient) LastStderr(n int) []string { return c.ring.LastN(n) }

// Stop closes stdin and terminates the process group.
func (c *RTMPClient) Stop() error {
	c.mu.Lock()
	cmd, stdin, waitCh := c.cmd, c.stdin, c.waitCh
	c.mu.Unlock()
	if cmd == nil {
		return nil
	}
	// EOF on stdin lets ffmpeg flush and exit on its own.
	_ = stdin.Close()
	select {
	case <-c.exited:
		c.mu.Lock()
		err := c.exitErr
		c.mu.Unlock()
		return ignoreSignalExit(err)
	case <-time.After(c.Grace):
	}
	err := procgroup.Terminate(cmd, waitCh, c.Grace)
	c.logger.Info().Str(log.FieldEvent, "rtmp.stopped").Msg("rtmp relay stopped")
	return ignoreSignalExit(err)
}

func ignoreSignalExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		return nil
	}
	return err
}
