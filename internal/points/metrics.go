package points

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	completions    prometheus.Counter
	claims         prometheus.Counter
	adjustments    prometheus.Counter
	pointsAwarded  prometheus.Counter
	pointsRedeemed prometheus.Counter
	rejections     *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.completions = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "companion_task_completions_total",
		Help: "number of tasks completed",
	})
	m.claims = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "companion_reward_claims_total",
		Help: "number of rewards claimed",
	})
	m.adjustments = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "companion_point_adjustments_total",
		Help: "number of manual balance adjustments",
	})
	m.pointsAwarded = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "companion_points_awarded_total",
		Help: "points credited for completed tasks",
	})
	m.pointsRedeemed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "companion_points_redeemed_total",
		Help: "points debited for claimed rewards",
	})
	m.rejections = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_engine_rejections_total",
			Help: "engine operations rejected, by operation and reason",
		},
		[]string{"operation", "reason"},
	)
}

func (m *engineMetrics) reject(op string, err error) {
	reason := "other"
	switch {
	case IsNotFound(err):
		reason = "not_found"
	case errors.Is(err, ErrTaskExpired):
		reason = "task_expired"
	case errors.Is(err, ErrInvalidAllocation):
		reason = "invalid_allocation"
	case errors.Is(err, ErrNoValidRecipients):
		reason = "no_valid_recipients"
	case errors.Is(err, ErrInsufficientPoints):
		reason = "insufficient_points"
	case errors.Is(err, ErrNameTaken):
		reason = "name_taken"
	}
	m.rejections.WithLabelValues(op, reason).Inc()
}
