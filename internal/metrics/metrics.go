// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_runs_total",
		Help: "Update runs by outcome (updated|no-change|failed)",
	}, []string{"outcome"})

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cabot_run_duration_seconds",
		Help:    "Wall time of a full update run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_stage_failures_total",
		Help: "Update run failures by pipeline stage",
	}, []string{"stage"}) // stage=clone|sync|diff|sign|commit|push|pull_request|cleanup

	dispatchRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_dispatch_rejected_total",
		Help: "Manual dispatches rejected before a run started",
	}, []string{"reason"}) // reason=busy|config|auth

	// Bundle metrics (last completed run)
	bundleCerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabot_bundle_certs",
		Help: "Certificates in the vendored bundle after the last run",
	})
	bundleExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabot_bundle_certs_expired",
		Help: "Expired certificates in the vendored bundle after the last run",
	})
	certsAdded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabot_certs_added",
		Help: "Roots added by the last update run",
	})
	certsRemoved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabot_certs_removed",
		Help: "Roots removed by the last update run",
	})

	// GitHub client metrics
	githubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_github_requests_total",
		Help: "GitHub API requests by method and status code",
	}, []string{"method", "code"})

	githubRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cabot_github_retries_total",
		Help: "GitHub API request retries",
	})

	// Resilience metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cabot_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

func RecordRun(outcome string, seconds float64) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(seconds)
}

func IncStageFailure(stage string) { stageFailuresTotal.WithLabelValues(stage).Inc() }

func IncDispatchRejected(reason string) { dispatchRejectedTotal.WithLabelValues(reason).Inc() }

func RecordBundle(certs, expired int) {
	bundleCerts.Set(float64(certs))
	bundleExpired.Set(float64(expired))
}

func RecordDiff(added, removed int) {
	certsAdded.Set(float64(added))
	certsRemoved.Set(float64(removed))
}

func IncGitHubRequest(method, code string) {
	githubRequestsTotal.WithLabelValues(method, code).Inc()
}

func IncGitHubRetry() { githubRetriesTotal.Inc() }

// SetCircuitBreakerState records a breaker state transition.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}
