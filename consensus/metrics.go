// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a point-in-time snapshot of the consensus manager's counters
// (spec section 4.E "Metrics" / section 6 "GET /status/consensus").
type Metrics struct {
	TotalProposals     uint64
	Successful         uint64
	Failed             uint64
	ViewChanges        uint64
	ActiveSessions     int
	AvgConsensusTimeMS float64
	CurrentView        uint64
}

type metricsTracker struct {
	mu sync.Mutex
	Metrics
	emaAlpha float64
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{emaAlpha: 0.2}
}

func (t *metricsTracker) recordStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TotalProposals++
	t.ActiveSessions++
}

func (t *metricsTracker) recordTerminal(success bool, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ActiveSessions--
	if success {
		t.Successful++
	} else {
		t.Failed++
	}
	ms := float64(elapsed.Milliseconds())
	if t.AvgConsensusTimeMS == 0 {
		t.AvgConsensusTimeMS = ms
	} else {
		t.AvgConsensusTimeMS = t.emaAlpha*ms + (1-t.emaAlpha)*t.AvgConsensusTimeMS
	}
}

func (t *metricsTracker) recordViewChange(newView uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ViewChanges++
	t.CurrentView = newView
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Metrics
}

type promMetrics struct {
	proposals   prometheus.Counter
	successful  prometheus.Counter
	failed      prometheus.Counter
	viewChanges prometheus.Counter
}

func registerPromMetrics(reg prometheus.Registerer, domain string) *promMetrics {
	labels := prometheus.Labels{"domain": domain}
	m := &promMetrics{
		proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_consensus_proposals_total",
			Help:        "Total consensus sessions started.",
			ConstLabels: labels,
		}),
		successful: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_consensus_committed_total",
			Help:        "Total consensus sessions that reached Committed.",
			ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_consensus_aborted_total",
			Help:        "Total consensus sessions that reached Aborted.",
			ConstLabels: labels,
		}),
		viewChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_consensus_view_changes_total",
			Help:        "Total view changes across all sessions.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.proposals, m.successful, m.failed, m.viewChanges)
	}
	return m
}
