// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"sync"
	"time"
)

// Metrics is a point-in-time snapshot of the sequencer's performance
// counters (spec section 4.C "Metrics").
type Metrics struct {
	TotalTransactions  uint64
	TPS                float64 // EMA of sequenced / processing_time
	AvgBatchSize       float64
	QueueDepth         int
	PendingBatches     int
	FailedTransactions uint64
	LastUpdated        time.Time
}

// metricsTracker accumulates the raw counters and derives EMAs; guarded by
// its own mutex so the processing loop never blocks on a metrics reader.
type metricsTracker struct {
	mu sync.Mutex
	Metrics
	emaAlpha float64
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{emaAlpha: 0.2}
}

func (t *metricsTracker) recordBatch(size int, processingTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TotalTransactions += uint64(size)

	if processingTime > 0 {
		tps := float64(size) / processingTime.Seconds()
		if t.TPS == 0 {
			t.TPS = tps
		} else {
			t.TPS = t.emaAlpha*tps + (1-t.emaAlpha)*t.TPS
		}
	}

	if t.AvgBatchSize == 0 {
		t.AvgBatchSize = float64(size)
	} else {
		t.AvgBatchSize = t.emaAlpha*float64(size) + (1-t.emaAlpha)*t.AvgBatchSize
	}
	t.LastUpdated = time.Now()
}

func (t *metricsTracker) recordFailure(size int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FailedTransactions += uint64(size)
	t.LastUpdated = time.Now()
}

func (t *metricsTracker) setQueueDepth(depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.QueueDepth = depth
}

func (t *metricsTracker) setPendingBatches(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.PendingBatches = n
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Metrics
}
