// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProviderDisabledIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "meetbot"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "span")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "meetbot", ExporterType: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestNewProviderNoopExporterSamples(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled: true, ServiceName: "meetbot", BotID: "bot_1", ExporterType: ExporterNoop, SamplingRate: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, p.Shutdown(context.Background()))
		otel.SetTracerProvider(noop.NewTracerProvider())
	})

	_, span := Tracer("test").Start(context.Background(), "span")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
}

func TestSamplerFollowsParent(t *testing.T) {
	assert.Contains(t, samplerFor(0).Description(), "ParentBased")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
	assert.Contains(t, samplerFor(2).Description(), "AlwaysOnSampler")
}

func TestBotAttributes(t *testing.T) {
	attrs := BotAttributes("bot_1", "teams", 2)
	assert.Contains(t, attrs, attribute.String(BotIDKey, "bot_1"))
	assert.Contains(t, attrs, attribute.String(PlatformKey, "teams"))
	assert.Contains(t, attrs, attribute.Int(AttemptKey, 2))
}

func TestLifecycleAttributes(t *testing.T) {
	attrs := LifecycleAttributes("bot_1", "joining", "bot_joined_meeting")
	assert.Len(t, attrs, 3)
	assert.Contains(t, attrs, attribute.String(EventTypeKey, "bot_joined_meeting"))
}
