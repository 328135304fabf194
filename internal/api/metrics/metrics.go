// Package metrics defines and registers all custom Prometheus metrics for the
// mindnest auth service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation, which is also the registry served by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

// ── Account metrics ───────────────────────────────────────────────────────────

// RegistrationsTotal counts account creations.
// Labels:
//   - role: the role of the new account ("user", "psychiatrist", "admin")
//   - result: "success", "duplicate" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of account creation attempts, by role and result.",
	},
	[]string{"role", "result"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts signed tokens.
// Label:
//   - type: "access" or "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of tokens issued, by token type.",
	},
	[]string{"type"},
)

// AuthRejectionsTotal counts requests rejected by the authorization gate.
// Label:
//   - reason: "missing_token", "invalid_token", "wrong_token_type" or "forbidden"
var AuthRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Total number of requests rejected by authentication or role checks.",
	},
	[]string{"reason"},
)

// ── Rate limit metrics ────────────────────────────────────────────────────────

// RateLimitedTotal counts requests refused because the caller exceeded a policy.
// Label:
//   - policy: "general" or "admin"
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter, by policy.",
	},
	[]string{"policy"},
)

// RateLimitErrorsTotal counts counter store failures. Requests pass through
// when this happens.
var RateLimitErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_errors_total",
		Help:      "Total number of rate limit store failures (request allowed).",
	},
	[]string{"policy"},
)

// ── Propagation metrics ───────────────────────────────────────────────────────

// PropagationsTotal counts downstream identity notifications.
// Labels:
//   - target: "user-service" or "therapist-service"
//   - trigger: "register", "admin_create" or "login"
//   - outcome: "created", "exists" or "failed"
var PropagationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "propagations_total",
		Help:      "Total number of downstream identity notifications, by target, trigger and outcome.",
	},
	[]string{"target", "trigger", "outcome"},
)

// PropagationDuration measures one downstream call including its timeout.
// Label:
//   - target: downstream service name
var PropagationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "propagation_duration_seconds",
		Help:      "Duration of downstream identity notification calls.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"target"},
)

// PropagationsDroppedTotal counts jobs discarded because the queue was full
// or the dispatcher was stopped.
// Label:
//   - reason: "queue_full" or "stopped"
var PropagationsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "propagations_dropped_total",
		Help:      "Total number of propagation jobs dropped before dispatch.",
	},
	[]string{"reason"},
)

// PropagationQueueDepth tracks the number of jobs waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var PropagationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "propagation_queue_depth",
		Help:      "Current number of jobs pending in each propagation worker channel.",
	},
	[]string{"worker_id"},
)

// ── Store metrics ─────────────────────────────────────────────────────────────

// StorePingFailuresTotal counts failed credential store health probes.
var StorePingFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_ping_failures_total",
		Help:      "Total number of failed credential store health probes.",
	},
)
