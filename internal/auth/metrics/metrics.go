// Package metrics defines the Prometheus metrics of the auth core. Metrics
// register with the default registry on package init through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authcore"

// Outcome label values shared by the counters below.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeMFARequired = "mfa_required"
	OutcomeRateLimited = "rate_limited"
	OutcomeReplay      = "replay"
	OutcomeConflict    = "conflict"
	OutcomeInactive    = "inactive"
)

// LoginsTotal counts login attempts.
// Label:
//   - outcome: success, failure, mfa_required, rate_limited, inactive
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// RefreshesTotal counts refresh token rotations.
// Label:
//   - outcome: success, failure, replay, conflict, rate_limited
var RefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Total number of refresh token rotations, by outcome.",
	},
	[]string{"outcome"},
)

// ReplayDetectionsTotal counts presentations of already-rotated refresh tokens.
var ReplayDetectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_replay_detections_total",
		Help:      "Total number of refresh token replays detected.",
	},
)

// MFAVerificationsTotal counts second-factor checks.
// Labels:
//   - method: totp or backup_code ("none" on failure)
//   - outcome: success or failure
var MFAVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mfa_verifications_total",
		Help:      "Total number of MFA verifications, by method and outcome.",
	},
	[]string{"method", "outcome"},
)

// PasswordResetsTotal counts the reset lifecycle.
// Label:
//   - stage: requested, issued, redeemed, rejected
var PasswordResetsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Total number of password reset events, by stage.",
	},
	[]string{"stage"},
)

// RateLimitedTotal counts attempts rejected by the rate limiter.
// Label:
//   - scope: login, mfa, refresh, reset
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of attempts rejected by rate limiting, by scope.",
	},
	[]string{"scope"},
)

// PasswordHashDuration measures argon2id hash and verify latency.
// Label:
//   - op: hash or verify
var PasswordHashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "password_hash_duration_seconds",
		Help:      "Duration of password hashing operations.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)
