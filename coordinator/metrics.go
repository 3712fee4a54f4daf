// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a point-in-time snapshot of the coordinator's counters.
type Metrics struct {
	Submitted int64
	Finalized int64
	Failed    int64
}

type metricsTracker struct {
	mu sync.Mutex
	Metrics
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{}
}

func (t *metricsTracker) recordSubmitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Submitted++
}

func (t *metricsTracker) recordFinalized() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Finalized++
}

func (t *metricsTracker) recordFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Failed++
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Metrics
}

type promMetrics struct {
	submitted prometheus.Counter
	finalized prometheus.Counter
	failed    prometheus.Counter
}

func registerPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synchronizer_coordinator_transactions_submitted_total",
			Help: "Total cross-domain transactions submitted for coordination.",
		}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synchronizer_coordinator_transactions_finalized_total",
			Help: "Total cross-domain transactions reaching Finalized.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synchronizer_coordinator_transactions_failed_total",
			Help: "Total cross-domain transactions reaching Failed or TimedOut.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.finalized, m.failed)
	}
	return m
}
