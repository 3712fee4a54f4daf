// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mediator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/synchronizer/types"
)

// promMetrics tracks the mediator's terminal-outcome counters, labeled so a
// single registry can serve every domain (spec section 4.D "Metrics").
type promMetrics struct {
	approved  prometheus.Counter
	rejected  prometheus.Counter
	timedOut  prometheus.Counter
	cancelled prometheus.Counter
}

func registerPromMetrics(reg prometheus.Registerer, domain string) *promMetrics {
	labels := prometheus.Labels{"domain": domain}
	m := &promMetrics{
		approved: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_mediator_sessions_approved_total",
			Help:        "Total mediation sessions that reached Approved.",
			ConstLabels: labels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_mediator_sessions_rejected_total",
			Help:        "Total mediation sessions that reached Rejected.",
			ConstLabels: labels,
		}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_mediator_sessions_timed_out_total",
			Help:        "Total mediation sessions that reached TimedOut.",
			ConstLabels: labels,
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "synchronizer_mediator_sessions_cancelled_total",
			Help:        "Total mediation sessions that reached Cancelled.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.approved, m.rejected, m.timedOut, m.cancelled)
	}
	return m
}

func (m *promMetrics) record(status types.MediationStatus) {
	if m == nil {
		return
	}
	switch status {
	case types.MediationApproved:
		m.approved.Inc()
	case types.MediationRejected:
		m.rejected.Inc()
	case types.MediationTimedOut:
		m.timedOut.Inc()
	case types.MediationCancelled:
		m.cancelled.Inc()
	}
}
