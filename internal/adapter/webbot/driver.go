// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Driver controls one browser session.
type Driver interface {
	// NewSession starts a browser, replacing any previous session.
	NewSession(ctx context.Context, opts ChromeOptions) error
	// AddInitScript runs source in every document before page scripts.
	AddInitScript(ctx context.Context, source string) error
	Navigate(ctx context.Context, url string) error
	// Execute runs script as a function body and returns its JSON result.
	Execute(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Snapshot returns the page as MHTML.
	Snapshot(ctx context.Context) ([]byte, error)
	Quit(ctx context.Context) error
}

// ChromeOptions are the browser launch options.
type ChromeOptions struct {
	WindowWidth  int
	WindowHeight int
	// Sandbox keeps Chrome's sandbox enabled.
	Sandbox bool
	// Extra arguments appended after the defaults.
	Extra []string
}

// Args returns the Chrome command line.
func (o ChromeOptions) Args() []string {
	args := []string{
		"--autoplay-policy=no-user-gesture-required",
		"--use-fake-device-for-media-stream",
		"--use-fake-ui-for-media-stream",
		"--window-size=" + strconv.Itoa(o.WindowWidth) + "," + strconv.Itoa(o.WindowHeight),
		"--start-fullscreen",
		"--disable-gpu",
		"--disable-extensions",
		"--disable-application-cache",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
	}
	if !o.Sandbox {
		args = append(args, "--no-sandbox", "--disable-setuid-sandbox")
	}
	return append(args, o.Extra...)
}

// ErrNoSession is returned by session commands before NewSession.
var ErrNoSession = errors.New("webdriver: no active session")

// WebDriverError is an error response from the driver server.
type WebDriverError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("webdriver: %s (http %d): %s", e.Code, e.Status, e.Message)
}

// WebDriver speaks the W3C WebDriver protocol to a chromedriver server,
// using its CDP passthrough for the commands the protocol lacks.
type WebDriver struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	session string
}

// NewWebDriver creates a client for the server at baseURL.
func NewWebDriver(baseURL string) *WebDriver {
	return &WebDriver{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   90 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (d *WebDriver) sessionID() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == "" {
		return "", ErrNoSession
	}
	return d.session, nil
}

func (d *WebDriver) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("webdriver: encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webdriver: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("webdriver: decode %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		werr := &WebDriverError{Status: resp.StatusCode}
		_ = json.Unmarshal(envelope.Value, werr)
		return nil, werr
	}
	return envelope.Value, nil
}

// NewSession implements Driver.
func (d *WebDriver) NewSession(ctx context.Context, opts ChromeOptions) error {
	if _, err := d.sessionID(); err == nil {
		_ = d.Quit(ctx)
	}
	caps := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]any{
					"args":            opts.Args(),
					"excludeSwitches": []string{"enable-automation"},
					"prefs": map[string]any{
						"credentials_enable_service":       false,
						"profile.password_manager_enabled": false,
					},
				},
			},
		},
	}
	raw, err := d.do(ctx, http.MethodPost, "/session", caps)
	if err != nil {
		return err
	}
	var v struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.SessionID == "" {
		return fmt.Errorf("webdriver: session response without id: %s", raw)
	}
	d.mu.Lock()
	d.session = v.SessionID
	d.mu.Unlock()
	return nil
}

func (d *WebDriver) cdp(ctx context.Context, cmd string, params map[string]any) (json.RawMessage, error) {
	id, err := d.sessionID()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return d.do(ctx, http.MethodPost, "/session/"+id+"/goog/cdp/execute", map[string]any{"cmd": cmd, "params": params})
}

// AddInitScript implements Driver.
func (d *WebDriver) AddInitScript(ctx context.Context, source string) error {
	_, err := d.cdp(ctx, "Page.addScriptToEvaluateOnNewDocument", map[string]any{"source": source})
	return err
}

// Navigate implements Driver.
func (d *WebDriver) Navigate(ctx context.Context, url string) error {
	id, err := d.sessionID()
	if err != nil {
		return err
	}
	_, err = d.do(ctx, http.MethodPost, "/session/"+id+"/url", map[string]any{"url": url})
	return err
}

// Execute implements Driver.
func (d *WebDriver) Execute(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	id, err := d.sessionID()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	return d.do(ctx, http.MethodPost, "/session/"+id+"/execute/sync", map[string]any{"script": script, "args": args})
}

// Screenshot implements Driver.
func (d *WebDriver) Screenshot(ctx context.Context) ([]byte, error) {
	id, err := d.sessionID()
	if err != nil {
		return nil, err
	}
	raw, err := d.do(ctx, http.MethodGet, "/session/"+id+"/screenshot", nil)
	if err != nil {
		return nil, err
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("webdriver: screenshot payload: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Snapshot implements Driver.
func (d *WebDriver) Snapshot(ctx context.Context) ([]byte, error) {
	raw, err := d.cdp(ctx, "Page.captureSnapshot", nil)
	if err != nil {
		return nil, err
	}
	var v struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("webdriver: snapshot payload: %w", err)
	}
	return []byte(v.Data), nil
}

// Quit implements Driver. It is a no-op without a session.
func (d *WebDriver) Quit(ctx context.Context) error {
	d.mu.Lock()
	id := d.session
	d.session = ""
	d.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := d.do(ctx, http.MethodDelete, "/session/"+id, nil)
	return err
}

// Ready polls the server status endpoint until it reports ready.
func (d *WebDriver) Ready(ctx context.Context, poll time.Duration) error {
	for {
		raw, err := d.do(ctx, http.MethodGet, "/status", nil)
		if err == nil {
			var v struct {
				Ready bool `json:"ready"`
			}
			if json.Unmarshal(raw, &v) == nil && v.Ready {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("webdriver: server not ready: %w", ctx.Err())
		case <-time.After(poll):
		}
	}
}
