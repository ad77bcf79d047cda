// Package metrics exposes Prometheus counters for the session subsystem
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeNoToken  = "no_token"
	OutcomeDenied   = "denied"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// authAttempts counts sign-in, link and sign-out attempts by outcome
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentify_auth_attempts_total",
		Help: "The total number of authentication attempts by flow and outcome",
	}, []string{"flow", "outcome"})

	// tokenSyncs counts backend token-sync calls
	tokenSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentify_token_syncs_total",
		Help: "The total number of GitHub token syncs with the backend",
	}, []string{"outcome"})

	// codeExchanges counts redirect-completion code exchanges
	codeExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentify_code_exchanges_total",
		Help: "The total number of authorization code exchanges",
	}, []string{"outcome"})

	// guardRedirects counts transitions into the unauthenticated state
	guardRedirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentify_guard_redirects_total",
		Help: "The total number of route guard redirects to the public entry",
	})

	// sessionReady is 1 once the first provider observation has fired
	sessionReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentify_session_ready",
		Help: "1 once the session state is known, 0 before",
	})

	// sessionActive is 1 while a principal is signed in
	sessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentify_session_active",
		Help: "1 while a session exists, 0 otherwise",
	})
)

// AddAuthAttempt increments the attempts counter for flow and outcome
func AddAuthAttempt(flow, outcome string) {
	authAttempts.WithLabelValues(flow, outcome).Inc()
}

// AddTokenSync increments the token-sync counter
func AddTokenSync(ok bool) {
	tokenSyncs.WithLabelValues(outcomeLabel(ok)).Inc()
}

// AddCodeExchange increments the code exchange counter
func AddCodeExchange(ok bool) {
	codeExchanges.WithLabelValues(outcomeLabel(ok)).Inc()
}

// AddGuardRedirect increments the guard redirect counter
func AddGuardRedirect() {
	guardRedirects.Inc()
}

// UpdateSessionState mirrors the session store state
func UpdateSessionState(ready, active bool) {
	sessionReady.Set(boolValue(ready))
	sessionActive.Set(boolValue(active))
}

// Handler serves the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcomeLabel(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeError
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
