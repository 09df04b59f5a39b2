// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediaout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/meetbot/internal/bot"
	"github.com/ManuGH/meetbot/internal/resilience"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu       sync.Mutex
	requests []bot.MediaRequest
	listErr  error
}

func (s *memStore) add(id string, t bot.MediaType, createdAt int64) {
	s.requests = append(s.requests, bot.MediaRequest{
		ID: id, Type: t, State: bot.MediaEnqueued, CreatedAt: time.Unix(createdAt, 0),
		Blob: make([]byte, 3200), SampleRate: 16000, URL: "https://example.com/" + id + ".mp4",
	})
}

func (s *memStore) MediaRequests(_ context.Context, _ string, t bot.MediaType, state bot.MediaRequestState) ([]bot.MediaRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []bot.MediaRequest
	for _, r := range s.requests {
		if r.Type == t && r.State == state {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) SetMediaRequestState(_ context.Context, id string, state bot.MediaRequestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == id {
			s.requests[i].State = state
			return nil
		}
	}
	return errors.New("not found")
}

func (s *memStore) state(id string) bot.MediaRequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ID == id {
			return r.State
		}
	}
	return ""
}

type fakePlayer struct {
	started  []string
	playing  bool
	startErr error
}

func (p *fakePlayer) Start(_ context.Context, req bot.MediaRequest) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = append(p.started, req.ID)
	p.playing = true
	return nil
}
func (p *fakePlayer) Playing() bool { return p.playing }
func (p *fakePlayer) Stop()         { p.playing = false }

func TestQueuePlaysOldestAndAdvancesWhenFinished(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	st.add("a2", bot.MediaAudio, 2)
	st.add("a1", bot.MediaAudio, 1)
	p := &fakePlayer{}
	q := NewQueue("bot_1", bot.MediaAudio, st, p, nil)

	require.NoError(t, q.Progress(ctx))
	assert.Equal(t, []string{"a1"}, p.started)
	assert.Equal(t, bot.MediaPlaying, st.state("a1"))

	// Still playing: nothing changes.
	require.NoError(t, q.Progress(ctx))
	require.NoError(t, q.Monitor(ctx))
	assert.Equal(t, []string{"a1"}, p.started)

	p.playing = false
	require.NoError(t, q.Monitor(ctx))
	assert.Equal(t, bot.MediaFinished, st.state("a1"))
	assert.Equal(t, bot.MediaPlaying, st.state("a2"))
	assert.Equal(t, []string{"a1", "a2"}, p.started)

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, "a2", cur.ID)
}

func TestQueueMarksFailedToPlay(t *testing.T) {
	st := &memStore{}
	st.add("v1", bot.MediaVideo, 1)
	q := NewQueue("bot_1", bot.MediaVideo, st, &fakePlayer{startErr: errors.New("no device")}, nil)

	require.NoError(t, q.Progress(context.Background()))
	assert.Equal(t, bot.MediaFailedToPlay, st.state("v1"))
	_, ok := q.Current()
	assert.False(t, ok)
}

func TestQueueWaitsForOrphanedPlayingRequest(t *testing.T) {
	st := &memStore{}
	st.add("a1", bot.MediaAudio, 1)
	st.add("a2", bot.MediaAudio, 2)
	st.requests[0].State = bot.MediaPlaying
	p := &fakePlayer{}
	q := NewQueue("bot_1", bot.MediaAudio, st, p, nil)

	require.NoError(t, q.Progress(context.Background()))
	assert.Empty(t, p.started)
	assert.Equal(t, bot.MediaEnqueued, st.state("a2"))
}

func TestQueueBreakerOpensOnStoreFailures(t *testing.T) {
	st := &memStore{listErr: errors.New("db down")}
	cb := resilience.NewCircuitBreaker("store", 2, time.Minute)
	q := NewQueue("bot_1", bot.MediaAudio, st, &fakePlayer{}, cb)

	ctx := context.Background()
	assert.Error(t, q.Progress(ctx))
	assert.Error(t, q.Progress(ctx))
	err := q.Progress(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

type imageSink struct {
	shown [][]byte
	err   error
}

func (s *imageSink) SendRawImage(b []byte) error {
	if s.err != nil {
		return s.err
	}
	s.shown = append(s.shown, b)
	return nil
}

func TestImagesPlayNewestAndDropOthers(t *testing.T) {
	st := &memStore{}
	st.add("r1", bot.MediaImage, 1)
	st.add("r2", bot.MediaImage, 2)
	st.add("r3", bot.MediaImage, 3)
	sink := &imageSink{}
	m := NewImages("bot_1", st, sink, nil)

	require.NoError(t, m.Progress(context.Background()))
	assert.Len(t, sink.shown, 1)
	assert.Equal(t, bot.MediaFinished, st.state("r3"))
	assert.Equal(t, bot.MediaDropped, st.state("r1"))
	assert.Equal(t, bot.MediaDropped, st.state("r2"))
}

func TestImagesSendFailure(t *testing.T) {
	st := &memStore{}
	st.add("r1", bot.MediaImage, 1)
	st.add("r2", bot.MediaImage, 2)
	m := NewImages("bot_1", st, &imageSink{err: errors.New("not ready")}, nil)

	require.NoError(t, m.Progress(context.Background()))
	assert.Equal(t, bot.MediaFailedToPlay, st.state("r2"))
	assert.Equal(t, bot.MediaDropped, st.state("r1"))
}

type audioSink struct {
	mu     sync.Mutex
	chunks [][]byte
	rates  []int
	failAt int
}

func (s *audioSink) SendRawAudio(b []byte, rate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.chunks)+1 == s.failAt {
		return errors.New("device gone")
	}
	s.chunks = append(s.chunks, append([]byte(nil), b...))
	s.rates = append(s.rates, rate)
	return nil
}

func (s *audioSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

func TestChunkedAudioPlayerSendsAllChunks(t *testing.T) {
	sink := &audioSink{}
	p := NewChunkedAudioPlayer(sink, 10*time.Millisecond)

	// 16000 Hz at 10ms is 320 bytes per chunk.
	req := bot.MediaRequest{ID: "a", Blob: make([]byte, 1000), SampleRate: 16000}
	require.NoError(t, p.Start(context.Background(), req))
	assert.True(t, p.Playing())

	require.Eventually(t, func() bool { return !p.Playing() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1000, sink.total())
	sink.mu.Lock()
	assert.Len(t, sink.chunks, 4)
	assert.Equal(t, 320, len(sink.chunks[0]))
	assert.Equal(t, 16000, sink.rates[0])
	sink.mu.Unlock()
	p.Stop()
}

func TestChunkedAudioPlayerFirstChunkFailure(t *testing.T) {
	p := NewChunkedAudioPlayer(&audioSink{failAt: 1}, 10*time.Millisecond)
	err := p.Start(context.Background(), bot.MediaRequest{Blob: make([]byte, 100), SampleRate: 16000})
	require.Error(t, err)
	assert.False(t, p.Playing())

	assert.ErrorIs(t, p.Start(context.Background(), bot.MediaRequest{}), ErrEmptyAudio)
}

func TestChunkedAudioPlayerStopInterrupts(t *testing.T) {
	sink := &audioSink{}
	p := NewChunkedAudioPlayer(sink, time.Hour)
	require.NoError(t, p.Start(context.Background(), bot.MediaRequest{Blob: make([]byte, 1<<20), SampleRate: 16000}))
	p.Stop()
	assert.False(t, p.Playing())
	assert.Len(t, sink.chunks, 1)
}

func TestChunkInterval(t *testing.T) {
	assert.Equal(t, 900*time.Millisecond, ChunkInterval(bot.MeetingZoom))
	assert.Equal(t, 100*time.Millisecond, ChunkInterval(bot.MeetingTeams))
}

type videoSink struct {
	urls    []string
	playing bool
}

func (s *videoSink) SendVideo(url string) error    { s.urls = append(s.urls, url); s.playing = true; return nil }
func (s *videoSink) IsSentVideoStillPlaying() bool { return s.playing }

func TestVideoPlayerGraceAndCompletion(t *testing.T) {
	now := time.Unix(0, 0)
	sink := &videoSink{}
	p := NewVideoPlayer(sink, func() time.Time { return now })

	assert.ErrorIs(t, p.Start(context.Background(), bot.MediaRequest{}), ErrNoVideoURL)
	require.NoError(t, p.Start(context.Background(), bot.MediaRequest{URL: "https://example.com/v.mp4"}))
	sink.playing = false
	assert.True(t, p.Playing(), "within start grace")

	now = now.Add(3 * time.Second)
	assert.False(t, p.Playing())
}

func TestRealtimeResamplesAndDrains(t *testing.T) {
	sink := &audioSink{}
	r := NewRealtime(sink, 5*time.Millisecond, 16000)
	r.AddChunk(make([]byte, 640), 8000)

	require.Eventually(t, func() bool { return sink.total() == 1280 && r.Buffered() == 0 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.AddChunk(make([]byte, 10), 16000)
	assert.Equal(t, 0, r.Buffered())
}

func TestRealtimeStopWithoutStart(t *testing.T) {
	r := NewRealtime(&audioSink{}, 0, 16000)
	r.Stop()
	r.Stop()
}
