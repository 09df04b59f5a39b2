// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	mu   sync.Mutex
	cmds []Name
}

func (r *received) handle(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd.Name)
	return nil
}

func (r *received) names() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Name(nil), r.cmds...)
}

func startChannel(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisChannel, *received) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := &received{}
	ch := NewRedisChannel(client, "bot_abc", rec.handle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("control channel did not stop")
		}
	})
	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)
	return mr, client, ch, rec
}

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(`{"command":"sync_media_requests"}`))
	require.NoError(t, err)
	assert.Equal(t, SyncMediaRequests, c.Name)
	assert.True(t, c.Name.Known())

	_, err = Decode([]byte(`{"cmd":"sync"}`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	assert.False(t, Name("reboot").Known())
	assert.Equal(t, "bot_abc", Topic("abc"))
}

func TestRedisChannelDelivers(t *testing.T) {
	mr, client, _, rec := startChannel(t)
	assert.Equal(t, []string{"bot_bot_abc"}, mr.PubSubChannels(""))

	ctx := context.Background()
	require.NoError(t, Publish(ctx, client, "bot_abc", Command{Name: PauseRecording}))
	require.NoError(t, client.Publish(ctx, "bot_bot_abc", `{"command":"reboot"}`).Err())
	require.NoError(t, client.Publish(ctx, "bot_bot_abc", `garbage`).Err())
	require.NoError(t, Publish(ctx, client, "bot_abc", Command{Name: ResumeRecording}))
	require.NoError(t, Publish(ctx, client, "other", Command{Name: Sync}))

	require.Eventually(t, func() bool { return len(rec.names()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []Name{PauseRecording, ResumeRecording}, rec.names())
}

func TestRedisChannelResubscribes(t *testing.T) {
	mr, client, ch, rec := startChannel(t)

	mr.Close()
	require.Eventually(t, func() bool { return !ch.Connected() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		_ = Publish(context.Background(), client, "bot_abc", Command{Name: Sync})
		return len(rec.names()) > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, ch.Connected())
}
