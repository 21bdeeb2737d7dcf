// Package metrics exposes Prometheus collectors for the selection engine.
//
// Collectors are registered on the default registry at init. Recorder adapts
// them to the observer interfaces of the catalog client, the write-back
// worker pool and the profile resolver.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/justestif/go-dual-gravity/internal/profiles"
)

var (
	// Catalog

	// CatalogCallsTotal counts catalog API calls by operation and outcome.
	CatalogCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_catalog_calls_total",
			Help: "Total number of catalog API calls",
		},
		[]string{"op", "outcome"},
	)

	// CatalogCallDuration tracks catalog API latency.
	CatalogCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dgs_catalog_call_duration_seconds",
			Help:    "Duration of catalog API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"op"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dgs_catalog_breaker_state",
			Help: "Catalog circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// BreakerTransitionsTotal counts breaker state changes.
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_catalog_breaker_transitions_total",
			Help: "Total number of catalog circuit breaker transitions",
		},
		[]string{"from", "to"},
	)

	// Write-back

	// JobsTotal counts background jobs by kind and outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_writeback_jobs_total",
			Help: "Total number of completed write-back jobs",
		},
		[]string{"kind", "outcome"},
	)

	// JobsDroppedTotal counts jobs dropped because the queue was full.
	JobsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_writeback_jobs_dropped_total",
			Help: "Total number of write-back jobs dropped on a full queue",
		},
		[]string{"kind"},
	)

	// Profiles

	// ProfileLookupsTotal counts requested artist ids by the tier that served them.
	ProfileLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_profile_lookups_total",
			Help: "Total number of artist profile lookups by serving tier",
		},
		[]string{"tier"},
	)

	// ProfileAPICallsTotal counts catalog batch calls made by profile lookups.
	ProfileAPICallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dgs_profile_api_calls_total",
			Help: "Total number of catalog calls made to resolve profiles",
		},
	)

	// Stages

	// StageDuration tracks stage latency by stage and outcome.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dgs_stage_duration_seconds",
			Help:    "Duration of selection stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 9},
		},
		[]string{"stage", "outcome"},
	)

	// SelectionsTotal counts stage 3 results by selection strategy and phase.
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dgs_selections_total",
			Help: "Total number of option sets produced",
		},
		[]string{"strategy", "phase"},
	)
)

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	default:
		return outcomeError
	}
}

var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Recorder forwards instrumentation callbacks to the package collectors.
type Recorder struct{}

// ObserveCall records one catalog API call.
func (Recorder) ObserveCall(op string, d time.Duration, err error) {
	CatalogCallsTotal.WithLabelValues(op, outcome(err)).Inc()
	CatalogCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// BreakerStateChanged records a circuit breaker transition.
func (Recorder) BreakerStateChanged(from, to string) {
	BreakerTransitionsTotal.WithLabelValues(from, to).Inc()
	if v, ok := breakerStates[to]; ok {
		BreakerState.Set(v)
	}
}

// JobDone records a finished background job.
func (Recorder) JobDone(kind string, err error) {
	JobsTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// JobDropped records a job rejected by a full queue.
func (Recorder) JobDropped(kind string) {
	JobsDroppedTotal.WithLabelValues(kind).Inc()
}

// RecordLookup records one profile lookup's tier counts.
func (Recorder) RecordLookup(s profiles.Stats) {
	ProfileLookupsTotal.WithLabelValues("memory").Add(float64(s.MemoryHits))
	ProfileLookupsTotal.WithLabelValues("store").Add(float64(s.StoreHits))
	ProfileLookupsTotal.WithLabelValues("api").Add(float64(s.APIFetched))
	ProfileLookupsTotal.WithLabelValues("missing").Add(float64(s.Missing))
	ProfileAPICallsTotal.Add(float64(s.APICalls))
}

// ObserveStage records one stage execution.
func ObserveStage(stage string, d time.Duration, err error) {
	StageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// ObserveSelection records the strategy and phase of a produced option set.
func ObserveSelection(strategy, phase string) {
	SelectionsTotal.WithLabelValues(strategy, phase).Inc()
}
