package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for FluentBuddy
type Metrics struct {
	RequirementsCompleted *prometheus.CounterVec
	ReviewsRecorded       *prometheus.CounterVec
	ExerciseAttempts      *prometheus.CounterVec
	PlanSessions          prometheus.Counter
	PlanSessionMinutes    prometheus.Histogram
	PersistFailures       *prometheus.CounterVec
	RemoteMerges          *prometheus.CounterVec
	Assessments           *prometheus.CounterVec
	RemindersSent         prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// Get returns the process-wide metrics, registering them on first use
func Get() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			RequirementsCompleted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_requirements_completed_total",
					Help: "Requirements marked complete",
				},
				[]string{"source"}, // manual, mastery
			),
			ReviewsRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_reviews_recorded_total",
					Help: "Requirement reviews recorded",
				},
				[]string{"outcome"}, // pass, fail
			),
			ExerciseAttempts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_exercise_attempts_total",
					Help: "Exercise answers submitted",
				},
				[]string{"level", "correct"},
			),
			PlanSessions: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "fluentbuddy_plan_sessions_total",
					Help: "Structured plan sessions ended",
				},
			),
			PlanSessionMinutes: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "fluentbuddy_plan_session_minutes",
					Help:    "Length of structured plan sessions in minutes",
					Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
				},
			),
			PersistFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_persist_failures_total",
					Help: "Failed snapshot writes",
				},
				[]string{"store", "key"}, // local, remote
			),
			RemoteMerges: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_remote_merges_total",
					Help: "Local/remote progress merges by winner",
				},
				[]string{"winner"}, // local, remote
			),
			Assessments: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fluentbuddy_assessments_total",
					Help: "Proficiency assessments by result",
				},
				[]string{"result"}, // ok, error, level_change
			),
			RemindersSent: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "fluentbuddy_reminders_sent_total",
					Help: "Review reminders delivered",
				},
			),
		}
	})
	return sharedMetrics
}

// Handler exposes the default registry over HTTP
func Handler() http.Handler {
	return promhttp.Handler()
}
