// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the credential flow.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquireTotal tracks credential acquisition attempts by strategy and outcome.
	AcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcast_credential_acquire_total",
		Help: "Total credential acquisition attempts by strategy and result",
	}, []string{"strategy", "result"})

	// AcquireDuration tracks the time spent acquiring a credential.
	AcquireDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcast_credential_acquire_duration_seconds",
		Help:    "Time spent acquiring a playback credential",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"strategy"})

	// SessionTransitions tracks session phase transitions.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcast_session_transitions_total",
		Help: "Total session phase transitions",
	}, []string{"from", "to"})

	// PlaybackErrors tracks playback engine errors by media error code.
	PlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcast_playback_errors_total",
		Help: "Total playback engine errors by media error code",
	}, []string{"code"})
)

// IncAcquire records a credential acquisition outcome.
func IncAcquire(strategy string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	AcquireTotal.WithLabelValues(strategy, result).Inc()
}

// ObserveAcquireDuration records how long an acquisition took.
func ObserveAcquireDuration(strategy string, d time.Duration) {
	AcquireDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// IncTransition records a session phase transition.
func IncTransition(from, to string) {
	SessionTransitions.WithLabelValues(from, to).Inc()
}

// IncPlaybackError records a playback engine error.
func IncPlaybackError(code int) {
	PlaybackErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}
