// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/synchronizer/transport"
)

// Metrics is a point-in-time snapshot of the orchestrator's aggregate
// performance counters (spec section 4.G "metrics updater").
type Metrics struct {
	TransactionsSubmitted uint64
	ActiveTransactions    int
	TPS                   float64 // EMA, transactions finalized per second
	AvgConsensusTimeMS    float64
	AvgSettlementTimeMS   float64
	SuccessRate           float64 // EMA of finalized / (finalized+failed)
	BlocksFinalized       uint64
	BlockHeight           uint64
	LastUpdated           time.Time
}

type metricsTracker struct {
	mu sync.Mutex
	Metrics
	emaAlpha      float64
	lastFinalized uint64
	lastSampledAt time.Time
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{emaAlpha: 0.2, lastSampledAt: time.Now()}
}

func (t *metricsTracker) recordSubmitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TransactionsSubmitted++
}

func (t *metricsTracker) recordBlockFinalized(height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.BlocksFinalized++
	t.BlockHeight = height
}

// sample recomputes the EMA-derived fields from the coordinator's current
// counters and the elapsed time since the previous sample (spec section
// 4.G "metrics updater", 10 second interval).
func (t *metricsTracker) sample(activeCount int, finalized, failed uint64, avgConsensusMS, avgSettlementMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastSampledAt).Seconds()
	if elapsed > 0 {
		tps := float64(finalized-t.lastFinalized) / elapsed
		if t.TPS == 0 {
			t.TPS = tps
		} else {
			t.TPS = t.emaAlpha*tps + (1-t.emaAlpha)*t.TPS
		}
	}
	t.lastFinalized = finalized
	t.lastSampledAt = now

	t.ActiveTransactions = activeCount
	t.AvgConsensusTimeMS = avgConsensusMS
	t.AvgSettlementTimeMS = avgSettlementMS

	total := finalized + failed
	if total > 0 {
		rate := float64(finalized) / float64(total)
		if t.SuccessRate == 0 {
			t.SuccessRate = rate
		} else {
			t.SuccessRate = t.emaAlpha*rate + (1-t.emaAlpha)*t.SuccessRate
		}
	}
	t.LastUpdated = now
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Metrics
}

type promMetrics struct {
	transactionsSubmitted prometheus.Counter
	blocksFinalized       prometheus.Counter
	blockHeight           prometheus.Gauge
	activeTransactions    prometheus.Gauge
	tps                   prometheus.Gauge
}

func registerPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		transactionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synchronizer_orchestrator_transactions_submitted_total",
			Help: "Total cross-domain transactions submitted.",
		}),
		blocksFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synchronizer_orchestrator_blocks_finalized_total",
			Help: "Total blocks finalized.",
		}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synchronizer_orchestrator_block_height",
			Help: "Latest finalized block height.",
		}),
		activeTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synchronizer_orchestrator_active_transactions",
			Help: "Currently tracked in-flight cross-domain transactions.",
		}),
		tps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synchronizer_orchestrator_tps",
			Help: "EMA of transactions finalized per second.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transactionsSubmitted, m.blocksFinalized, m.blockHeight, m.activeTransactions, m.tps)
	}
	return m
}

// Metrics returns a snapshot of the orchestrator's current counters (spec
// section 6 "GET /status").
func (o *Orchestrator) Metrics() Metrics {
	return o.metrics.snapshot()
}

const (
	metricsUpdaterInterval    = 10 * time.Second
	healthCheckInterval       = 30 * time.Second
	transactionMonitorInterval = 5 * time.Second
	blockProcessorInterval    = 1 * time.Second
)

// runLoop ticks fn on the given interval until ctx is cancelled, matching
// the teacher's one-goroutine-per-background-loop idiom (spec section 9).
func (o *Orchestrator) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// metricsUpdaterTick recomputes aggregate metrics from the coordinator and
// consensus manager's current state (spec section 4.G "metrics updater").
func (o *Orchestrator) metricsUpdaterTick(ctx context.Context) {
	activeCount := len(o.Mempool())
	coordMetrics := o.coordinator.Metrics()
	consensusMetrics := o.consensus.Metrics()

	o.metrics.sample(activeCount, uint64(coordMetrics.Finalized), uint64(coordMetrics.Failed), consensusMetrics.AvgConsensusTimeMS, 0)
	if o.prom != nil {
		o.prom.activeTransactions.Set(float64(activeCount))
		o.prom.tps.Set(o.metrics.snapshot().TPS)
	}
}

// healthCheckTick emits a HealthCheck event on the configured cadence
// (spec section 4.G "health checker", 30 second interval) and, if a bus is
// wired, announces this node's liveness on the events topic.
func (o *Orchestrator) healthCheckTick(ctx context.Context) {
	o.emit(Event{Kind: EventHealthCheck})
	nodeID := ""
	if o.clock != nil {
		nodeID = o.clock.Now().NodeID.String()
	}
	o.publish(transport.TopicEvents, transport.KindHealthPing, transport.HealthPingPayload{NodeId: nodeID})
}

// transactionMonitorTick times out any ActiveTransaction past its
// timeout_at (spec section 4.G "transaction monitor", 5 second interval).
func (o *Orchestrator) transactionMonitorTick(ctx context.Context) {
	o.coordinator.CheckTimeouts(ctx)
	o.coordinator.CheckRetries(ctx)
	o.consensus.CheckTimeouts(ctx)
	o.consensus.CheckViewChanges(ctx)
	o.mediatorM.SweepTimeouts(ctx)

	for _, txID := range o.mempool.pending() {
		o.clearMempoolIfTerminal(txID)
	}
}

// blockProcessorTickLoop drives the block processor background loop (spec
// section 4.G "block processor", 1 second interval).
func (o *Orchestrator) blockProcessorTickLoop(ctx context.Context) {
	o.blockProcessorTick()
}
