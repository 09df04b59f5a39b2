// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_EMPTY", "")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BAD_INT", "4x2")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_BOOL", "YES")
	t.Setenv("T_BAD_BOOL", "maybe")
	t.Setenv("T_FLOAT", "0.25")

	assert.Equal(t, "value", ParseString("T_STR", "def"))
	assert.Equal(t, "def", ParseString("T_EMPTY", "def"))
	assert.Equal(t, "def", ParseString("T_UNSET", "def"))
	assert.Equal(t, 42, ParseInt("T_INT", 1))
	assert.Equal(t, 1, ParseInt("T_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("T_DUR", time.Second))
	assert.True(t, ParseBool("T_BOOL", false))
	assert.True(t, ParseBool("T_BAD_BOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("T_FLOAT", 1), 1e-9)
}

func TestParseEnvMasksSensitiveValues(t *testing.T) {
	t.Setenv("T_ZOOM_SDK_SECRET", "hunter2")
	t.Setenv("T_PLAIN", "visible")

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	identity := func(s string) (string, error) { return s, nil }

	assert.Equal(t, "hunter2", parseEnv(logger, "T_ZOOM_SDK_SECRET", "", identity))
	assert.Equal(t, "visible", parseEnv(logger, "T_PLAIN", "", identity))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, `"sensitive":true`)
	assert.Contains(t, out, "visible")
}
