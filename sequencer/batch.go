// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"sort"
	"sync"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// BatchConfig controls when a building batch becomes Ready (spec section 4.C).
type BatchConfig struct {
	MaxSize     int           // Ready once |txs| >= MaxSize
	MaxSizeKiB  int           // Ready once total_size >= MaxSize * 1 KiB
	MinSize     int           // combined with MaxTimeout below
	MaxTimeout  time.Duration // Ready once |txs| >= MinSize AND timer >= MaxTimeout
}

// batch accumulates PendingTransactions under a single lock until it is
// sealed and swapped out by the batch processor.
type batch struct {
	mu       sync.Mutex
	id       types.BatchId
	txs      []types.PendingTransaction
	total    int
	createdAt time.Time
}

func newBatch() *batch {
	return &batch{id: types.NewBatchId(), createdAt: time.Now()}
}

// add appends tx to the batch and reports whether the batch is now Ready
// per BatchConfig's three thresholds.
func (b *batch) add(tx types.PendingTransaction, cfg BatchConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	b.total += tx.Metadata.SizeBytes
	return b.readyLocked(cfg)
}

func (b *batch) readyLocked(cfg BatchConfig) bool {
	if len(b.txs) >= cfg.MaxSize {
		return true
	}
	if cfg.MaxSizeKiB > 0 && b.total >= cfg.MaxSizeKiB*1024 {
		return true
	}
	if len(b.txs) >= cfg.MinSize && time.Since(b.createdAt) >= cfg.MaxTimeout {
		return true
	}
	return false
}

// readyByTimer is polled by the processing loop so a batch below MaxSize
// still seals once it has aged past MaxTimeout with at least MinSize
// transactions (spec section 4.C, third Ready condition).
func (b *batch) readyByTimer(cfg BatchConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyLocked(cfg)
}

// seal stable-sorts the batch's transactions by priority descending (spec
// section 4.C "Sequencing a batch") and returns them along with the batch's
// identity and creation time; the batch must not be reused afterward.
func (b *batch) seal() (types.BatchId, []types.PendingTransaction, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sort.SliceStable(b.txs, func(i, j int) bool {
		return b.txs[i].ComputedPriority > b.txs[j].ComputedPriority
	})
	return b.id, b.txs, b.total, b.createdAt
}

func (b *batch) isEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.txs) == 0
}
