// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package metrics provides Prometheus instrumentation for the supervisor.

All collectors are registered on the default registry through promauto and
exposed by the status server at /metrics:

	curl http://127.0.0.1:8787/metrics

# Available Metrics

Crash interception:
  - crashguard_faults_total{outcome}: handled, unhandled, bypassed
  - crashguard_handler_panics_total{client_id}
  - crashguard_handler_skipped_total{client_id}: breaker open
  - crashguard_safe_mode_active, crashguard_safe_mode_entries_total

Hot reload:
  - crashguard_reloads_total{result}
  - crashguard_reload_duration_seconds
  - crashguard_reload_state
  - crashguard_reload_hook_failures_total{client_id}

Emergency save:
  - crashguard_save_requests_total{kind}
  - crashguard_save_writes_total, crashguard_save_failures_total
  - crashguard_save_requests_coalesced_total
  - crashguard_save_duration_seconds

Messaging and sampling:
  - crashguard_mailbox_messages_total{kind}, crashguard_mailbox_dropped_total{kind}
  - crashguard_events_published_total{topic}
  - crashguard_host_* gauges mirroring the latest performance snapshot
  - crashguard_sampler_ticks_total{result}

Status server:
  - crashguard_api_requests_total{method,route,status}
  - crashguard_api_request_duration_seconds{method,route}
  - crashguard_api_active_requests

Client IDs are bounded by the number of registered clients, so the
client_id label does not grow without limit.
*/
package metrics
