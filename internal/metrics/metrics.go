// Package metrics holds the Prometheus collectors for the withdrawal
// workflow. Collectors register with the default registry on import.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

var (
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawal_codes_issued_total",
		Help: "Withdrawal codes issued.",
	})

	CodesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawal_codes_expired_total",
		Help: "Withdrawal codes moved to expired by the sweeper.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_redemptions_total",
		Help: "Redemption attempts by outcome.",
	}, []string{"outcome"})

	RedeemedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_redeemed_amount_total",
		Help: "Sum of successfully redeemed amounts.",
	}, []string{"channel"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_transitions_total",
		Help: "Operator transitions applied to withdrawal requests.",
	}, []string{"status"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_notifications_total",
		Help: "Notification delivery attempts by sink and result.",
	}, []string{"sink", "result"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "withdrawal_sweep_duration_seconds",
		Help:    "Duration of housekeeping sweeps.",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_panics_recovered_total",
		Help: "Handler panics turned into 500 responses.",
	}, []string{"method"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Outcome maps a redemption result to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrKYCRequired):
		return "kyc_required"
	case errors.Is(err, domain.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, domain.ErrExceedsBalance):
		return "exceeds_balance"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

// DeliveryResult is a notify.Dispatcher result hook.
func DeliveryResult(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Notifications.WithLabelValues(sink, result).Inc()
}
