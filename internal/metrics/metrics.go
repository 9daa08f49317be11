// ABOUTME: Prometheus metrics for the voice client
// ABOUTME: Counts frames, playback units, sessions and errors by category
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ose_capture_frames_sent_total",
		Help: "Captured frames forwarded to the session",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ose_capture_frames_dropped_total",
		Help: "Captured frames dropped before sending",
	}, []string{"reason"}) // reason: "not_recording", "no_session", "encode"

	AudioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ose_audio_bytes_total",
		Help: "Total audio bytes exchanged with the service",
	}, []string{"direction"}) // direction: "in" or "out"

	// Playback metrics
	UnitsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ose_playback_units_scheduled_total",
		Help: "Decoded audio units placed on the output timeline",
	})

	Interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ose_playback_interruptions_total",
		Help: "Barge-in interruptions received from the service",
	})

	ActiveUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ose_playback_active_units",
		Help: "Playback units scheduled and not yet ended",
	})

	// Session metrics
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ose_sessions_total",
		Help: "Session connection attempts",
	}, []string{"result"}) // result: "success" or "error"

	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ose_session_state",
		Help: "Session state (0=uninitialized, 1=connecting, 2=open, 3=closing, 4=closed)",
	})

	// Error metrics
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ose_errors_total",
		Help: "Surfaced errors by category",
	}, []string{"category"})
)

// RecordSession records the outcome of a connection attempt
func RecordSession(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	Sessions.WithLabelValues(result).Inc()
}

// RecordError records an error
func RecordError(category string) {
	Errors.WithLabelValues(category).Inc()
}

// RecordAudioBytes records audio bytes exchanged
func RecordAudioBytes(direction string, bytes int) {
	AudioBytes.WithLabelValues(direction).Add(float64(bytes))
}
