// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderPauseSkipsChunks(t *testing.T) {
	var relayed int
	r := NewRecorder(t.TempDir(), "bot_1", Configuration{RecordAudio: true, RecordVideo: true}, Callbacks{
		OnEncoded: func([]byte) { relayed++ },
	})
	require.ErrorIs(t, r.Pause(), ErrNotStarted)
	require.NoError(t, r.Start(context.Background()))

	r.PushEncoded([]byte("aa"))
	require.NoError(t, r.Pause())
	assert.True(t, r.Paused())
	r.PushEncoded([]byte("bb"))
	require.NoError(t, r.Resume())
	r.PushEncoded([]byte("cc"))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())

	got, err := os.ReadFile(r.OutputPath())
	require.NoError(t, err)
	assert.Equal(t, "aacc", string(got))
	assert.Equal(t, 3, relayed, "relay is not paused")
	assert.Equal(t, "bot_1.webm", filepath.Base(r.OutputPath()))
}

func TestRecorderAudioOnlyWritesPCM(t *testing.T) {
	var forwarded [][]byte
	r := NewRecorder(t.TempDir(), "bot_2", Configuration{RecordAudio: true}, Callbacks{
		OnMixedAudio: func(b []byte) { forwarded = append(forwarded, b) },
	})
	require.NoError(t, r.Start(context.Background()))
	r.PushMixedAudio([]byte{1, 0, 2, 0})
	r.PushEncoded([]byte("ignored"))
	require.NoError(t, r.Stop())

	got, err := os.ReadFile(r.OutputPath())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, got)
	assert.Len(t, forwarded, 1)
}

func TestRecorderWithoutRecordingHasNoFile(t *testing.T) {
	r := NewRecorder(t.TempDir(), "bot_3", Configuration{TranscribeAudio: true}, Callbacks{})
	require.NoError(t, r.Start(context.Background()))
	r.PushMixedAudio([]byte{1, 2})
	require.NoError(t, r.Stop())
	assert.Empty(t, r.OutputPath())
	require.ErrorIs(t, r.Start(context.Background()), ErrStopped)
}

func floats(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestFloat32ToPCM16(t *testing.T) {
	pcm := Float32ToPCM16(floats(0, 1, -1, 2))
	require.Len(t, pcm, 8)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(pcm[0:])))
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(pcm[2:])))
	assert.Equal(t, int16(-math.MaxInt16), int16(binary.LittleEndian.Uint16(pcm[4:])))
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(pcm[6:])), "clipped")
}

func TestHasSignal(t *testing.T) {
	assert.False(t, HasSignal(floats(0, 0, 0)))
	assert.False(t, HasSignal(floats(float32(math.Copysign(0, -1)))), "negative zero is silence")
	assert.True(t, HasSignal(floats(0, 0.01)))
}

func TestResampleLength(t *testing.T) {
	in := make([]byte, 2*480)
	assert.Len(t, Resample(in, 48000, 16000), 2*160)
	assert.Len(t, Resample(in, 16000, 48000), 2*1440)
	assert.Equal(t, in, Resample(in, 16000, 16000))
}

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)
	_, _ = r.Write([]byte("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, r.LastN(5))
	_, _ = r.Write([]byte("c\nd\n"))
	assert.Equal(t, []string{"b", "c", "d"}, r.LastN(5))
	assert.Equal(t, []string{"d"}, r.LastN(1))
}
