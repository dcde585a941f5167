// Package odmetrics exposes prometheus instrumentation
// for the on-demand ordering service.
//
// All methods on a nil *Metrics are no-ops,
// so components may be constructed without metrics.
package odmetrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gordian-engine/godos/od/odconsensus"
)

// ProposalSource labels where a stored proposal came from.
type ProposalSource string

const (
	ProposalSourceLocal    ProposalSource = "local"
	ProposalSourceReceived ProposalSource = "received"
	ProposalSourceFetched  ProposalSource = "fetched"
)

// Metrics holds the ordering service collectors.
type Metrics struct {
	batchesOffered  prometheus.Counter
	batchesAdded    prometheus.Counter
	batchesExcluded *prometheus.CounterVec

	proposalsStored  *prometheus.CounterVec
	proposalsDropped *prometheus.CounterVec
	proposalRequests *prometheus.CounterVec

	fetchLatencies *prometheus.HistogramVec

	pendingBatches  prometheus.Gauge
	cachedProposals prometheus.Gauge
}

// New creates the collectors and registers them with reg
// under the given namespace.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		batchesOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_offered_total",
			Help:      "How many batches were offered to the pending cache, including duplicates.",
		}),
		batchesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_added_total",
			Help:      "How many batches were newly added to the pending cache.",
		}),
		batchesExcluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_excluded_total",
				Help:      "How many pending batches were removed, partitioned by reason.",
			},
			[]string{"reason"},
		),
		proposalsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposals_stored_total",
				Help:      "How many proposals were stored, partitioned by source (local, received, fetched).",
			},
			[]string{"source"},
		),
		proposalsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposals_dropped_total",
				Help:      "How many candidate proposals lost the race for their round or fell outside the window.",
			},
			[]string{"source"},
		),
		proposalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposal_requests_total",
				Help:      "How many proposal requests were answered, partitioned by result status.",
			},
			[]string{"status"},
		),
		fetchLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "proposal_fetch_seconds",
				Help:      "How long remote proposal fetches take, partitioned by outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"outcome"},
		),
		pendingBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_batches",
			Help:      "Number of batches in the pending cache.",
		}),
		cachedProposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_proposals",
			Help:      "Number of proposals retained in the round window.",
		}),
	}

	collectors := []prometheus.Collector{
		m.batchesOffered, m.batchesAdded, m.batchesExcluded,
		m.proposalsStored, m.proposalsDropped, m.proposalRequests,
		m.fetchLatencies,
		m.pendingBatches, m.cachedProposals,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to register ordering metrics: %w", err)
	}

	return m, nil
}

// BatchesOffered records a call offering n batches, of which added were new.
func (m *Metrics) BatchesOffered(n, added int) {
	if m == nil {
		return
	}
	m.batchesOffered.Add(float64(n))
	m.batchesAdded.Add(float64(added))
}

// BatchesExcluded records n pending batches removed for reason.
func (m *Metrics) BatchesExcluded(reason odconsensus.ExclusionReason, n int) {
	if m == nil {
		return
	}
	m.batchesExcluded.WithLabelValues(reason.String()).Add(float64(n))
}

// ProposalStored records the outcome of storing a proposal from src.
func (m *Metrics) ProposalStored(src ProposalSource, inserted bool) {
	if m == nil {
		return
	}
	if inserted {
		m.proposalsStored.WithLabelValues(string(src)).Inc()
	} else {
		m.proposalsDropped.WithLabelValues(string(src)).Inc()
	}
}

// ProposalRequested records the status returned to a proposal request.
func (m *Metrics) ProposalRequested(status odconsensus.ProposalStatus) {
	if m == nil {
		return
	}
	m.proposalRequests.WithLabelValues(status.String()).Inc()
}

// FetchObserved records a remote proposal fetch that took d.
func (m *Metrics) FetchObserved(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	m.fetchLatencies.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetCacheSizes updates the cache size gauges.
func (m *Metrics) SetCacheSizes(pending, proposals int) {
	if m == nil {
		return
	}
	m.pendingBatches.Set(float64(pending))
	m.cachedProposals.Set(float64(proposals))
}
