// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/meetbot/internal/log"
	"github.com/ManuGH/meetbot/internal/procgroup"
)

// DefaultChromeDriverPath is where the container image installs chromedriver.
const DefaultChromeDriverPath = "/usr/local/bin/chromedriver"

// ChromeDriver is a chromedriver server owned by the bot process.
type ChromeDriver struct {
	port   int
	cmd    *exec.Cmd
	waitCh chan error
	logger zerolog.Logger
}

// StartChromeDriver launches bin on a free local port and waits until it
// accepts sessions.
func StartChromeDriver(ctx context.Context, botID, bin string) (*ChromeDriver, error) {
	if bin == "" {
		bin = DefaultChromeDriverPath
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(bin, "--port="+strconv.Itoa(port)) // #nosec G204
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("chromedriver start: %w", err)
	}
	c := &ChromeDriver{port: port, cmd: cmd, waitCh: make(chan error, 1), logger: log.WithBot("webbot.chromedriver", botID)}
	go func() { c.waitCh <- cmd.Wait() }()

	readyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := NewWebDriver(c.URL()).Ready(readyCtx, 100*time.Millisecond); err != nil {
		_ = c.Stop()
		return nil, err
	}
	c.logger.Info().Str(log.FieldEvent, "webbot.chromedriver_started").Int(log.FieldPort, port).Int("pid", cmd.Process.Pid).Msg("chromedriver started")
	return c, nil
}

// URL is the server's base URL.
func (c *ChromeDriver) URL() string { return "http://127.0.0.1:" + strconv.Itoa(c.port) }

// Stop terminates chromedriver and the browsers it spawned.
func (c *ChromeDriver) Stop() error {
	err := procgroup.Terminate(c.cmd, c.waitCh, 5*time.Second)
	c.logger.Info().Str(log.FieldEvent, "webbot.chromedriver_stopped").Msg("chromedriver stopped")
	return err
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("chromedriver port: %w", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
