// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fault outcome label values.
const (
	OutcomeHandled   = "handled"
	OutcomeUnhandled = "unhandled"
	OutcomeBypassed  = "bypassed"
)

// Reload result label values.
const (
	ReloadCompleted  = "completed"
	ReloadPartial    = "partial"
	ReloadVetoed     = "vetoed"
	ReloadTimeout    = "freeze_timeout"
	ReloadDisabled   = "disabled"
	ReloadInProgress = "in_progress"
)

var (
	// Crash interception
	FaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_faults_total",
			Help: "Total number of faults presented to the crash interceptor",
		},
		[]string{"outcome"},
	)

	HandlerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_handler_panics_total",
			Help: "Total number of crash handlers that panicked while resolving a fault",
		},
		[]string{"client_id"},
	)

	HandlerSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_handler_skipped_total",
			Help: "Crash handlers skipped because their circuit breaker was open",
		},
		[]string{"client_id"},
	)

	HandlerBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crashguard_handler_breaker_state",
			Help: "Crash handler circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"client_id"},
	)

	SafeModeActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashguard_safe_mode_active",
			Help: "1 while the supervisor is in safe mode, 0 otherwise",
		},
	)

	SafeModeEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashguard_safe_mode_entries_total",
			Help: "Total number of transitions into safe mode",
		},
	)

	// Registry
	RegisteredClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crashguard_registered_clients",
			Help: "Number of registered clients by registration kind",
		},
		[]string{"kind"}, // "handler", "layer"
	)

	// Hot reload
	ReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_reloads_total",
			Help: "Total number of reload requests by result",
		},
		[]string{"result"},
	)

	ReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crashguard_reload_duration_seconds",
			Help:    "Duration of reload transactions that passed the gate",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ReloadState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crashguard_reload_state",
			Help: "Current reload orchestrator state (0 = IDLE)",
		},
	)

	HookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_reload_hook_failures_total",
			Help: "Total number of compatibility layer reload hooks that failed",
		},
		[]string{"client_id"},
	)

	// Emergency save
	SaveRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_save_requests_total",
			Help: "Total number of save requests by kind",
		},
		[]string{"kind"}, // "emergency", "auto", "reload"
	)

	SaveWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashguard_save_writes_total",
			Help: "Total number of durable writes issued to the persistence collaborator",
		},
	)

	SaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashguard_save_failures_total",
			Help: "Total number of failed durable writes",
		},
	)

	SaveCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crashguard_save_requests_coalesced_total",
			Help: "Save requests merged into an already pending batch",
		},
	)

	SaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crashguard_save_duration_seconds",
			Help:    "Duration of durable writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Messaging
	MailboxMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_mailbox_messages_total",
			Help: "Total number of inbound messages dispatched by kind",
		},
		[]string{"kind"},
	)

	MailboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_mailbox_dropped_total",
			Help: "Inbound messages dropped because the mailbox was full or closed",
		},
		[]string{"kind"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_events_published_total",
			Help: "Lifecycle events published on the event bus by topic",
		},
		[]string{"topic"},
	)

	// Performance sampler mirrors the latest snapshot
	HostFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_fps",
		Help: "Average frame rate reported by the host",
	})

	HostTickRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_tick_rate",
		Help: "Simulation tick rate reported by the host",
	})

	HostMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_memory_used_bytes",
		Help: "Memory used by the host",
	})

	HostMemoryTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_memory_total_bytes",
		Help: "Memory available to the host",
	})

	HostEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_entities",
		Help: "Entity count reported by the host",
	})

	HostChunks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_host_chunks",
		Help: "Loaded chunk count reported by the host",
	})

	SamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_sampler_ticks_total",
			Help: "Sampler ticks by result",
		},
		[]string{"result"}, // "sampled", "skipped_frozen", "skipped_disabled", "error"
	)

	// HTTP status server
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crashguard_api_requests_total",
			Help: "Status server requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crashguard_api_request_duration_seconds",
			Help:    "Status server request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashguard_api_active_requests",
		Help: "Status server requests currently in flight",
	})
)

// RecordFault records the outcome of one intercepted fault.
func RecordFault(outcome string) {
	FaultsTotal.WithLabelValues(outcome).Inc()
}

// RecordReload records a reload request result and, for transactions that
// passed the gate, their duration.
func RecordReload(result string, duration time.Duration) {
	ReloadsTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		ReloadDuration.Observe(duration.Seconds())
	}
}

// RecordSaveWrite records a durable write attempt.
func RecordSaveWrite(duration time.Duration, err error) {
	SaveDuration.Observe(duration.Seconds())
	if err != nil {
		SaveFailures.Inc()
		return
	}
	SaveWrites.Inc()
}

// SetSafeMode updates the safe mode gauge.
func SetSafeMode(active bool) {
	if active {
		SafeModeActive.Set(1)
		return
	}
	SafeModeActive.Set(0)
}

// UpdateHostGauges mirrors one performance sample.
func UpdateHostGauges(fps float64, tickRate int, memUsed, memTotal uint64, entities, chunks int) {
	HostFPS.Set(fps)
	HostTickRate.Set(float64(tickRate))
	HostMemoryUsed.Set(float64(memUsed))
	HostMemoryTotal.Set(float64(memTotal))
	HostEntities.Set(float64(entities))
	HostChunks.Set(float64(chunks))
}

// RecordAPIRequest records one completed status server request. route is
// the matched route pattern, not the raw path.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
