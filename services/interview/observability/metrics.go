// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the interview
// service, exposed on /metrics for Prometheus + Grafana.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "aleutian"
	interviewSubsystem = "interview"
)

// InterviewMetrics holds all Prometheus metrics for the interview service.
// Initialize once at startup via InitMetrics; all operations are
// thread-safe via Prometheus's internal locking.
type InterviewMetrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: method, route, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request latency.
	// Labels: method, route
	RequestDurationSeconds *prometheus.HistogramVec

	// SessionsCreatedTotal counts created sessions.
	SessionsCreatedTotal prometheus.Counter

	// QuestionsMintedTotal counts minted questions.
	// Labels: qtype (behavioral, coding, mcq, fib, scenario)
	QuestionsMintedTotal *prometheus.CounterVec

	// StrikesTotal counts policy strikes.
	// Labels: type (SCREENSHOT_ATTEMPT, ...), severity (yellow, red)
	StrikesTotal *prometheus.CounterVec

	// SessionsSealedTotal counts force-ended sessions.
	// Labels: end_code (screenshot_attempt, fs_exit_excess, face_missing)
	SessionsSealedTotal *prometheus.CounterVec

	// EventsIngestedTotal counts accepted anti-cheat events.
	EventsIngestedTotal prometheus.Counter

	// ActiveStreams tracks open session WebSockets.
	ActiveStreams prometheus.Gauge

	// SandboxRunsTotal counts code evaluations.
	// Labels: outcome (pass, fail, rejected)
	SandboxRunsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *InterviewMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// promauto panics on duplicate registration.
func InitMetrics() *InterviewMetrics {
	m := &InterviewMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		RequestDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		SessionsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		QuestionsMintedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "questions_minted_total",
			Help:      "Questions minted by type.",
		}, []string{"qtype"}),
		StrikesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "strikes_total",
			Help:      "Policy strikes by event type and severity.",
		}, []string{"type", "severity"}),
		SessionsSealedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "sessions_sealed_total",
			Help:      "Sessions force-ended by end code.",
		}, []string{"end_code"}),
		EventsIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "events_ingested_total",
			Help:      "Anti-cheat events accepted into the hash chain.",
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "active_streams",
			Help:      "Open session WebSocket connections.",
		}),
		SandboxRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: interviewSubsystem,
			Name:      "sandbox_runs_total",
			Help:      "Code evaluations by outcome.",
		}, []string{"outcome"}),
	}
	DefaultMetrics = m
	return m
}

// GinMiddleware records the request counter and latency histogram for every
// route. Uses c.FullPath so path parameters do not explode cardinality.
func (m *InterviewMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDurationSeconds.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}
