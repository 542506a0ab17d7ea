// Package metrics defines and registers all custom Prometheus metrics for the
// task tracker services. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tasktracker"

// ── Identity metrics ──────────────────────────────────────────────────────────

// IdentityCacheTotal counts identity cache lookups.
// Labels:
//   - keyspace: "username" or "id"
//   - result: "hit", "miss" or "error"
var IdentityCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identity_cache_lookups_total",
		Help:      "Total number of identity cache lookups, by keyspace and result.",
	},
	[]string{"keyspace", "result"},
)

// TokensIssuedTotal counts successful logins.
var TokensIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of bearer tokens issued.",
	},
)

// TokenVerificationsTotal counts verifier outcomes.
// Label:
//   - result: "ok", "malformed", "signature_invalid", "expired",
//     "not_found", "disabled", "error"
var TokenVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_verifications_total",
		Help:      "Total number of token verifications, by result.",
	},
	[]string{"result"},
)

// DelegatedVerificationsTotal counts verifier calls made by downstream services.
// Label:
//   - result: "ok", "unauthenticated", "forbidden", "unavailable"
var DelegatedVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delegated_verifications_total",
		Help:      "Total number of delegated verification calls, by result.",
	},
	[]string{"result"},
)

// ── Ingestion metrics ─────────────────────────────────────────────────────────

// TasksEnqueuedTotal counts task events published to the ingestion log.
var TasksEnqueuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_enqueued_total",
		Help:      "Total number of task events published, by priority.",
	},
	[]string{"priority"},
)

// EventsPersistedTotal counts events persisted and committed.
var EventsPersistedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_events_persisted_total",
		Help:      "Total number of task events persisted and committed.",
	},
)

// EventsErrorsTotal counts events that failed a consumer stage.
// Label:
//   - reason: "deserialization", "persistence", "commit", "poll"
var EventsErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_errors_total",
		Help:      "Total number of ingestion failures, by reason.",
	},
	[]string{"reason"},
)

// ConsumerState exposes the consumer state machine as a gauge with one
// series per state, set to 1 for the current state.
var ConsumerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_consumer_state",
		Help:      "Current state of the ingestion consumer (1 = active).",
	},
	[]string{"state"},
)

// EventProcessingDuration measures decode-to-commit latency of a single event.
var EventProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_event_processing_duration_seconds",
		Help:      "Duration of event processing from poll to commit.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)
