// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webbot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/autoleave"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

type events struct {
	mu    sync.Mutex
	items []adapter.Event
	local []adapter.Event
}

func (e *events) Post(_ context.Context, ev adapter.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, ev)
	return nil
}

func (e *events) PostLocal(ev adapter.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = append(e.local, ev)
}

func (e *events) kinds() []adapter.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]adapter.Kind, 0, len(e.items))
	for _, ev := range e.items {
		out = append(out, ev.Kind)
	}
	return out
}

func (e *events) ofKind(k adapter.Kind) []adapter.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []adapter.Event
	for _, ev := range e.items {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

type fakeDriver struct {
	mu       sync.Mutex
	respond  func(script string, args []any) (json.RawMessage, error)
	scripts  []string
	sessions int
	visited  []string
	inits    []string
	quits    int
}

func (d *fakeDriver) NewSession(context.Context, ChromeOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions++
	return nil
}

func (d *fakeDriver) AddInitScript(_ context.Context, source string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits = append(d.inits, source)
	return nil
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	return nil
}

func (d *fakeDriver) Execute(_ context.Context, script string, args ...any) (json.RawMessage, error) {
	d.mu.Lock()
	d.scripts = append(d.scripts, script)
	respond := d.respond
	d.mu.Unlock()
	if respond == nil {
		return json.RawMessage("null"), nil
	}
	return respond(script, args)
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }
func (d *fakeDriver) Snapshot(context.Context) ([]byte, error)   { return []byte("mhtml"), nil }

func (d *fakeDriver) Quit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

func (d *fakeDriver) ran(sub string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.scripts {
		if strings.Contains(s, sub) {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Sleep advances the clock instead of waiting.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func frame(t FrameType, payload []byte) []byte {
	b := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(b, uint32(t))
	return append(b, payload...)
}

func floats(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func jsonFrame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return frame(FrameJSON, b)
}

func newTestAdapter(t *testing.T, p Platform, d *fakeDriver) (*Adapter, *events, *fakeClock) {
	t.Helper()
	ev := &events{}
	clk := newClock()
	p.Port = 0
	a := New(Config{
		BaseConfig: adapter.BaseConfig{
			BotID:       "bot_web",
			DisplayName: "Notetaker",
			AutoLeave:   autoleave.DefaultConfig(),
			Events:      ev,
			Now:         clk.Now,
		},
		MeetingURL:      "https://meet.google.com/abc-defg-hij",
		Platform:        p,
		Driver:          d,
		SendMixedAudio:  true,
		CollectCaptions: true,
		Sleep:           clk.Sleep,
	})
	t.Cleanup(func() { _ = a.Cleanup(context.Background()) })
	return a, ev, clk
}
