// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTMPClientRelaysStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "relay.flv")
	c := NewRTMPClient("rtmp://example/live")
	c.BinPath = "sh"
	c.Args = []string{"-c", "cat > " + out}
	c.Grace = time.Second

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsRunning())
	require.NoError(t, c.Write([]byte("FLV")))
	require.NoError(t, c.Stop())

	<-c.Exited()
	assert.False(t, c.IsRunning())
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "FLV", string(got))
	require.ErrorIs(t, c.Write([]byte("x")), ErrRelayDown)
}

func TestRTMPClientReportsEarlyExit(t *testing.T) {
	c := NewRTMPClient("rtmp://example/live")
	c.BinPath = "sh"
	c.Args = []string{"-c", "echo 'Connection refused' >&2; exit 1"}

	require.NoError(t, c.Start(context.Background()))
	select {
	case <-c.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit")
	}
	assert.False(t, c.IsRunning())
	assert.Equal(t, []string{"Connection refused"}, c.LastStderr(5))
	require.Error(t, c.Stop())
}
