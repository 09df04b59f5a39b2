// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChromeDriver records the commands it receives.
type fakeChromeDriver struct {
	mu       sync.Mutex
	commands []map[string]any
	deleted  int
}

func (f *fakeChromeDriver) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": v})
	}
	record := func(r *http.Request) map[string]any {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.commands = append(f.commands, body)
		f.mu.Unlock()
		return body
	}
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"ready": true})
	})
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		reply(w, http.StatusOK, map[string]any{"sessionId": "s1"})
	})
	mux.HandleFunc("POST /session/s1/url", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		reply(w, http.StatusOK, nil)
	})
	mux.HandleFunc("POST /session/s1/execute/sync", func(w http.ResponseWriter, r *http.Request) {
		body := record(r)
		if body["script"] == "throw" {
			reply(w, http.StatusInternalServerError, map[string]any{"error": "javascript error", "message": "boom"})
			return
		}
		reply(w, http.StatusOK, body["args"])
	})
	mux.HandleFunc("GET /session/s1/screenshot", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, base64.StdEncoding.EncodeToString([]byte("png-bytes")))
	})
	mux.HandleFunc("POST /session/s1/goog/cdp/execute", func(w http.ResponseWriter, r *http.Request) {
		body := record(r)
		if body["cmd"] == "Page.captureSnapshot" {
			reply(w, http.StatusOK, map[string]any{"data": "MIME-Version: 1.0"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"identifier": "1"})
	})
	mux.HandleFunc("DELETE /session/s1", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.deleted++
		f.mu.Unlock()
		reply(w, http.StatusOK, nil)
	})
	return mux
}

func newFakeChromeDriver(t *testing.T) (*fakeChromeDriver, *WebDriver) {
	t.Helper()
	f := &fakeChromeDriver{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewWebDriver(srv.URL)
}

func TestWebDriverSessionCommands(t *testing.T) {
	f, d := newFakeChromeDriver(t)
	ctx := context.Background()

	_, err := d.Execute(ctx, "return 1;")
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, d.Ready(ctx, 10*time.Millisecond))
	require.NoError(t, d.NewSession(ctx, ChromeOptions{WindowWidth: 1920, WindowHeight: 1080}))
	require.NoError(t, d.AddInitScript(ctx, "window.initialData = {};"))
	require.NoError(t, d.Navigate(ctx, "https://meet.google.com/abc-defg-hij"))

	out, err := d.Execute(ctx, "return arguments[0];", "hello", 2)
	require.NoError(t, err)
	assert.JSONEq(t, `["hello", 2]`, string(out))

	png, err := d.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), png)

	mhtml, err := d.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MIME-Version: 1.0", string(mhtml))

	require.NoError(t, d.Quit(ctx))
	require.NoError(t, d.Quit(ctx))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.deleted)
	caps := f.commands[0]["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)
	chrome := caps["goog:chromeOptions"].(map[string]any)
	assert.Contains(t, chrome["args"], "--window-size=1920,1080")
	assert.Contains(t, chrome["args"], "--no-sandbox")
	assert.Equal(t, "Page.addScriptToEvaluateOnNewDocument", f.commands[1]["cmd"])
}

func TestWebDriverError(t *testing.T) {
	_, d := newFakeChromeDriver(t)
	ctx := context.Background()
	require.NoError(t, d.NewSession(ctx, ChromeOptions{}))

	_, err := d.Execute(ctx, "throw")
	var werr *WebDriverError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, http.StatusInternalServerError, werr.Status)
	assert.Equal(t, "javascript error", werr.Code)
	assert.Equal(t, "boom", werr.Message)
	require.NoError(t, d.Quit(ctx))
}

func TestChromeOptionsSandbox(t *testing.T) {
	args := ChromeOptions{WindowWidth: 1280, WindowHeight: 720, Sandbox: true, Extra: []string{"--lang=de"}}.Args()
	assert.NotContains(t, args, "--no-sandbox")
	assert.Equal(t, "--lang=de", args[len(args)-1])
}
