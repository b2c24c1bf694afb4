package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dental360"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "auth", Name: "login_attempts_total", Help: "Login attempts by outcome."},
		[]string{"outcome"},
	)
	RefreshAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "auth", Name: "refresh_attempts_total", Help: "Refresh token redemptions by outcome."},
		[]string{"outcome"},
	)
	Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "auth", Name: "validations_total", Help: "Access token validations by outcome."},
		[]string{"outcome"},
	)
	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "auth", Name: "sessions_revoked_total", Help: "Sessions revoked by reason."},
		[]string{"reason"},
	)
)

// Outcome labels an error for the outcome counters: "ok", a taxonomy code, or "error".
func Outcome(code string, err error) string {
	if err == nil {
		return "ok"
	}
	if code != "" {
		return code
	}
	return "error"
}

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(RefreshAttempts)
	reg.MustRegister(Validations)
	reg.MustRegister(SessionsRevoked)
}
