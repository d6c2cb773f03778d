package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamePrefix = "election_"

// MetricsCollector tracks operation counts, rejections and latencies. A nil
// collector is valid and records nothing.
type MetricsCollector struct {
	electionsCreated prometheus.Counter
	votersRegistered prometheus.Counter
	registrations    prometheus.Counter
	votesCast        prometheus.Counter
	tabulations      prometheus.Counter
	ballotsCreated   prometheus.Counter
	rejections       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
}

// NewMetricsCollector creates the collectors and registers them with
// registry. A nil registry leaves them unregistered.
func NewMetricsCollector(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		electionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "elections_created_total",
			Help: "Total number of elections created",
		}),
		votersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "voters_registered_total",
			Help: "Total number of voters registered",
		}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "election_registrations_total",
			Help: "Total number of accepted voter registrations for elections",
		}),
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "votes_cast_total",
			Help: "Total number of votes recorded",
		}),
		tabulations: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "tabulations_total",
			Help: "Total number of successful result tabulations",
		}),
		ballotsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: metricNamePrefix + "ballots_created_total",
			Help: "Total number of ballots created",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricNamePrefix + "rejections_total",
			Help: "Total number of rejected operations by reason",
		}, []string{"operation", "reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricNamePrefix + "operation_duration_seconds",
			Help:    "Duration of election operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (mc *MetricsCollector) RecordElectionCreated() {
	if mc == nil {
		return
	}
	mc.electionsCreated.Inc()
}

func (mc *MetricsCollector) RecordVoterRegistered() {
	if mc == nil {
		return
	}
	mc.votersRegistered.Inc()
}

func (mc *MetricsCollector) RecordRegistration() {
	if mc == nil {
		return
	}
	mc.registrations.Inc()
}

func (mc *MetricsCollector) RecordVote() {
	if mc == nil {
		return
	}
	mc.votesCast.Inc()
}

func (mc *MetricsCollector) RecordTabulation() {
	if mc == nil {
		return
	}
	mc.tabulations.Inc()
}

func (mc *MetricsCollector) RecordBallotCreated() {
	if mc == nil {
		return
	}
	mc.ballotsCreated.Inc()
}

func (mc *MetricsCollector) RecordRejection(operation string, err error) {
	if mc == nil || err == nil {
		return
	}
	mc.rejections.WithLabelValues(operation, ErrorKind(err)).Inc()
}

// ObserveDuration is meant to be deferred: defer mc.ObserveDuration("op", time.Now())
func (mc *MetricsCollector) ObserveDuration(operation string, start time.Time) {
	if mc == nil {
		return
	}
	mc.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
