package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
)

const (
	OutcomeConfirmed   = "confirmed"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeDenied      = "denied"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

var (
	// Labels: provider, outcome (confirmed/unconfirmed/denied/not_found/error)
	JoinAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autojoin_join_attempts_total",
			Help: "Total number of join attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	JoinDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autojoin_join_duration_seconds",
			Help:    "Time from trigger to admitted or failed, by provider",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"provider"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autojoin_active_sessions",
			Help: "Number of meetings currently joined",
		},
	)

	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autojoin_pending_timers",
			Help: "Number of armed join triggers and teardown timers",
		},
	)

	TranscriptionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autojoin_transcription_start_failures_total",
			Help: "Total number of transcription sessions that failed to start",
		},
	)
)

// OutcomeOf classifies the result of an adapter join.
func OutcomeOf(confirmed bool, err error) string {
	switch {
	case err == nil && confirmed:
		return OutcomeConfirmed
	case err == nil:
		return OutcomeUnconfirmed
	case errors.Is(err, adapters.ErrAdmissionDenied):
		return OutcomeDenied
	case errors.Is(err, adapters.ErrElementNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

func RecordJoin(provider string, confirmed bool, err error, seconds float64) {
	JoinAttemptsTotal.WithLabelValues(provider, OutcomeOf(confirmed, err)).Inc()
	JoinDuration.WithLabelValues(provider).Observe(seconds)
}
