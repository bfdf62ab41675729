// Package metrics defines the Prometheus instrumentation for the relay
// gateway. Collectors are registered against an injected registry so tests
// can run gateways side by side without collector name collisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Chat request outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	// ChatRequests counts chat requests by terminal outcome.
	ChatRequests *prometheus.CounterVec

	// RelayRequests counts passthrough CRUD requests by method.
	RelayRequests *prometheus.CounterVec

	// FramesDecoded counts upstream frames successfully decoded.
	FramesDecoded prometheus.Counter

	// FramesDropped counts malformed upstream frames that were skipped.
	FramesDropped prometheus.Counter

	// SoftErrors counts error-typed records reported inside the stream.
	SoftErrors prometheus.Counter

	// UnknownEvents counts upstream records with an unrecognized type.
	// A rising rate here means the backend grew a new event kind.
	UnknownEvents prometheus.Counter

	// StreamDuration observes wall-clock seconds per answer stream.
	StreamDuration prometheus.Histogram
}

// New creates the gateway collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "chat_requests_total",
			Help:      "Chat requests by terminal outcome.",
		}, []string{"outcome"}),
		RelayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "relay_requests_total",
			Help:      "Passthrough CRUD requests by HTTP method.",
		}, []string{"method"}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "stream_frames_decoded_total",
			Help:      "Upstream stream frames successfully decoded.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "stream_frames_dropped_total",
			Help:      "Malformed upstream stream frames skipped.",
		}),
		SoftErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "stream_soft_errors_total",
			Help:      "Error records reported inside the answer stream.",
		}),
		UnknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "stream_unknown_events_total",
			Help:      "Upstream stream records with an unrecognized type.",
		}),
		StreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "stream_duration_seconds",
			Help:      "Wall-clock duration of answer streams.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	reg.MustRegister(
		m.ChatRequests,
		m.RelayRequests,
		m.FramesDecoded,
		m.FramesDropped,
		m.SoftErrors,
		m.UnknownEvents,
		m.StreamDuration,
	)

	return m
}
