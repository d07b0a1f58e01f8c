package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchnode",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Duration of completed analysis jobs",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"kind"})

	analysisFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchnode",
		Subsystem: "analysis",
		Name:      "failures_total",
		Help:      "Failed analysis jobs",
	}, []string{"kind", "code"})

	jobFirings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchnode",
		Subsystem: "scheduler",
		Name:      "job_firings_total",
		Help:      "Job body runs, scheduled or manual",
	}, []string{"kind", "manual"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchnode",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notification delivery attempts",
	}, []string{"channel", "result"})
)

// ObserveAnalysis records the duration of a completed analysis job.
func ObserveAnalysis(kind string, d time.Duration) {
	analysisDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncAnalysisFailure counts a failed analysis job.
func IncAnalysisFailure(kind, code string) {
	if code == "" {
		code = "unknown"
	}
	analysisFailures.WithLabelValues(kind, code).Inc()
}

// IncJobFired counts a job body run.
func IncJobFired(kind string, manual bool) {
	jobFirings.WithLabelValues(kind, strconv.FormatBool(manual)).Inc()
}

// IncNotification counts a delivery attempt on a channel.
func IncNotification(channel string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	notifications.WithLabelValues(channel, result).Inc()
}
