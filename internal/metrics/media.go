// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mediaRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_media_requests_total",
		Help: "Total number of media request state changes by media type and target state",
	}, []string{"media_type", "state"})

	utterancesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_utterances_created_total",
		Help: "Total number of utterances created by source",
	}, []string{"source"})

	websocketFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_websocket_frames_total",
		Help: "Total number of browser websocket frames by frame type",
	}, []string{"frame_type"})
)

// RecordMediaRequest counts a media request moving into state.
func RecordMediaRequest(mediaType, state string) {
	mediaRequests.WithLabelValues(mediaType, state).Inc()
}

// RecordUtterance counts a newly created utterance.
func RecordUtterance(source string) {
	utterancesCreated.WithLabelValues(source).Inc()
}

// RecordWebsocketFrame counts a decoded browser frame.
func RecordWebsocketFrame(frameType string) {
	websocketFrames.WithLabelValues(frameType).Inc()
}
