package sched

import (
	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"
)

var (
	assignmentsTotal *prometheus.CounterVec
	sessionsStarted  *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	queueLength      *prometheus.GaugeVec
	queueScoreMean   *prometheus.GaugeVec
	queueScoreStddev *prometheus.GaugeVec
	tickDuration     prometheus.Histogram
	notifyFailures   prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec, *prometheus.GaugeVec, *prometheus.GaugeVec, prometheus.Histogram, prometheus.Counter) {
	asn := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeq_assignments_total",
		Help: "Number of queue users assigned to a charger",
	}, []string{"location"})
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeq_sessions_started_total",
		Help: "Number of charging sessions started",
	}, []string{"location"})
	ended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chargeq_sessions_ended_total",
		Help: "Number of charging sessions ended",
	}, []string{"location"})
	qlen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeq_queue_length",
		Help: "Current number of users waiting at a location",
	}, []string{"location"})
	mean := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeq_queue_score_mean",
		Help: "Mean fairness score of the waiting users at a location",
	}, []string{"location"})
	stddev := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargeq_queue_score_stddev",
		Help: "Standard deviation of the fairness scores at a location",
	}, []string{"location"})
	tick := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chargeq_tick_duration_seconds",
		Help:    "Duration of a queue tick including assignments",
		Buckets: prometheus.DefBuckets,
	})
	nf := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chargeq_notify_failures_total",
		Help: "Number of failed push notification deliveries",
	})
	return asn, started, ended, qlen, mean, stddev, tick, nf
}

func init() {
	assignmentsTotal, sessionsStarted, sessionsEnded, queueLength, queueScoreMean, queueScoreStddev, tickDuration, notifyFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(assignmentsTotal, sessionsStarted, sessionsEnded, queueLength, queueScoreMean, queueScoreStddev, tickDuration, notifyFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	assignmentsTotal, sessionsStarted, sessionsEnded, queueLength, queueScoreMean, queueScoreStddev, tickDuration, notifyFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

// observeQueueScores records distribution statistics for the freshly updated
// queue scores.
func observeQueueScores(locationID string, waiting []queued) {
	if len(waiting) == 0 {
		return
	}
	scores := make([]float64, len(waiting))
	for i, w := range waiting {
		scores[i] = w.user.Score
	}
	queueLength.WithLabelValues(locationID).Set(float64(len(scores)))
	queueScoreMean.WithLabelValues(locationID).Set(stat.Mean(scores, nil))
	sd := 0.0
	if len(scores) > 1 {
		sd = stat.StdDev(scores, nil)
	}
	queueScoreStddev.WithLabelValues(locationID).Set(sd)
}
