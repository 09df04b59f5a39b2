// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/meetbot/internal/adapter"
	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/pipeline"
)

// fakeAdapter records the calls the orchestrator makes and lets tests raise
// events as a real adapter would.
type fakeAdapter struct {
	base adapter.BaseConfig

	mu            sync.Mutex
	inits         int
	leaves        int
	disconnects   int
	cleanups      int
	pauses        int
	resumes       int
	admits        int
	galleryPages  []bool
	sentChat      []string
	captionLang   []string
	participants  map[string]bot.Participant
	chatReady     bool
	panicOnCheck  bool
	stagedDelay   time.Duration
	initErr       error
	failChatAfter int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{participants: map[string]bot.Participant{}, stagedDelay: time.Minute}
}

func (a *fakeAdapter) emit(ev adapter.Event) error {
	return a.base.Events.Post(context.Background(), ev)
}

func (a *fakeAdapter) addParticipant(p bot.Participant) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.participants[p.UUID] = p
}

func (a *fakeAdapter) calls(fn func(*fakeAdapter) int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a)
}

func (a *fakeAdapter) Init(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	return a.initErr
}

func (a *fakeAdapter) Leave(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leaves++
	return nil
}

func (a *fakeAdapter) Disconnect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnects++
	return nil
}

func (a *fakeAdapter) Cleanup(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups++
	return nil
}

func (a *fakeAdapter) SendRawAudio([]byte, int) error { return nil }
func (a *fakeAdapter) SendRawImage([]byte) error      { return nil }
func (a *fakeAdapter) SendVideo(string) error         { return nil }
func (a *fakeAdapter) IsSentVideoStillPlaying() bool  { return false }

func (a *fakeAdapter) GetParticipant(id string) (bot.Participant, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.participants[id]
	return p, ok
}

func (a *fakeAdapter) PauseRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pauses++
	return nil
}

func (a *fakeAdapter) ResumeRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resumes++
	return nil
}

func (a *fakeAdapter) CheckAutoLeaveConditions() {
	a.mu.Lock()
	boom := a.panicOnCheck
	a.mu.Unlock()
	if boom {
		panic("auto leave check exploded")
	}
}

func (a *fakeAdapter) AdmitFromWaitingRoom() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admits++
	return nil
}

func (a *fakeAdapter) ChangeGalleryViewPage(next bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.galleryPages = append(a.galleryPages, next)
	return nil
}

func (a *fakeAdapter) IsReadyToSendChatMessages() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chatReady
}

func (a *fakeAdapter) SendChatMessage(text, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failChatAfter > 0 && len(a.sentChat) >= a.failChatAfter {
		return adapter.ErrUnsupported
	}
	a.sentChat = append(a.sentChat, text)
	return nil
}

func (a *fakeAdapter) UpdateClosedCaptionsLanguage(language string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captionLang = append(a.captionLang, language)
	return nil
}

func (a *fakeAdapter) StagedJoinDelay() time.Duration        { return a.stagedDelay }
func (a *fakeAdapter) FirstBufferTimestampMs() (int64, bool) { return 0, false }

// fakePipeline tracks recorder control calls.
type fakePipeline struct {
	mu      sync.Mutex
	started bool
	starts  int
	pauses  int
	resumes int
	stops   int
	encoded int
	mixed   int
	output  string

	// pauseErr, when set, fails Pause after the started check.
	pauseErr error
}

func (p *fakePipeline) failPause(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseErr = err
}

func (p *fakePipeline) count(fn func(*fakePipeline) int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p)
}

func (p *fakePipeline) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.starts++
	return nil
}

func (p *fakePipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return pipeline.ErrNotStarted
	}
	if p.pauseErr != nil {
		return p.pauseErr
	}
	p.pauses++
	return nil
}

func (p *fakePipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return pipeline.ErrNotStarted
	}
	p.resumes++
	return nil
}

func (p *fakePipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePipeline) PushEncoded([]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encoded++
}

func (p *fakePipeline) PushMixedAudio([]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mixed++
}

func (p *fakePipeline) OutputPath() string { return p.output }
