package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Merge outcomes used as the "outcome" label.
const (
	outcomeSuccess    = "success"
	outcomeNotFound   = "not_found"
	outcomeValidation = "validation"
	outcomeConflict   = "conflict"
	outcomeError      = "error"
)

var (
	// mergesTotal counts merge attempts by outcome.
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_customer_merges_total",
			Help: "Customer merge attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// mergeDuration records end-to-end merge latency in seconds.
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_merge_duration_seconds",
			Help:    "Duration of customer merges in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// tasksOverdueMarked counts tasks moved to OVERDUE by the sweeper.
	tasksOverdueMarked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_tasks_overdue_marked_total",
			Help: "Tasks transitioned to OVERDUE by task automation.",
		},
	)

	// followUpsCreated counts follow-up tasks created for stale customers.
	followUpsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_followup_tasks_created_total",
			Help: "Follow-up tasks created for customers without recent contact.",
		},
	)
)

func init() {
	prometheus.MustRegister(mergesTotal, mergeDuration, tasksOverdueMarked, followUpsCreated)
}

// mergeOutcome maps a merge result to its metric label.
func mergeOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, ErrValidation):
		return outcomeValidation
	case errors.Is(err, ErrConflict):
		return outcomeConflict
	default:
		return outcomeError
	}
}
