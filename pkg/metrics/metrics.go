package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docugate", Name: "callbacks_total", Help: "Document Server callbacks processed, by status code and outcome."},
		[]string{"status", "outcome"},
	)
	VersionsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docugate", Name: "versions_committed_total", Help: "Document versions committed through the gateway."},
	)
	SavesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docugate", Name: "saves_discarded_total", Help: "Save callbacks discarded because the changed bytes could not be fetched."},
	)
	LockConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docugate", Name: "lock_conflicts_total", Help: "Lock acquisitions refused because another session holds the document."},
	)
	SessionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docugate", Name: "sessions_reaped_total", Help: "Editing sessions expired by the inactivity reaper."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docugate", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docugate", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(CallbacksTotal)
	reg.MustRegister(VersionsCommitted)
	reg.MustRegister(SavesDiscarded)
	reg.MustRegister(LockConflicts)
	reg.MustRegister(SessionsReaped)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
