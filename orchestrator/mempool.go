// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// MempoolStatus is a mempool entry's coarse lifecycle, distinct from the
// richer ActiveTransaction status machine the coordinator owns.
type MempoolStatus int

const (
	MempoolPending MempoolStatus = iota
	MempoolCleared
)

// MempoolEntry is the orchestrator's record of a submitted transaction,
// keyed by tx_id (spec section 4.G "records a MempoolEntry keyed by
// tx_id").
type MempoolEntry struct {
	TransactionId types.TransactionId
	SubmittedAt   time.Time
	Status        MempoolStatus
}

type mempool struct {
	mu      sync.RWMutex
	entries map[types.TransactionId]*MempoolEntry
}

func newMempool() *mempool {
	return &mempool{entries: make(map[types.TransactionId]*MempoolEntry)}
}

func (mp *mempool) add(id types.TransactionId, now time.Time) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if _, exists := mp.entries[id]; exists {
		return
	}
	mp.entries[id] = &MempoolEntry{TransactionId: id, SubmittedAt: now, Status: MempoolPending}
}

func (mp *mempool) has(id types.TransactionId) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, ok := mp.entries[id]
	return ok
}

func (mp *mempool) clear(id types.TransactionId) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if e, ok := mp.entries[id]; ok {
		e.Status = MempoolCleared
	}
}

// pending returns every transaction id still awaiting a terminal status,
// for the `GET /mempool` surface of spec section 6.
func (mp *mempool) pending() []types.TransactionId {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	out := make([]types.TransactionId, 0, len(mp.entries))
	for id, e := range mp.entries {
		if e.Status == MempoolPending {
			out = append(out, id)
		}
	}
	return out
}

// SubmitTransaction validates tx, records it in the mempool, hands it to
// the cross-domain coordinator, and starts the transaction's progression
// toward consensus (spec section 4.G "Submission"). Repeated submission of
// an already-known tx_id is a no-op returning the original id (spec
// section 8, "at-most-once acceptance").
func (o *Orchestrator) SubmitTransaction(ctx context.Context, tx types.CrossDomainTransaction) (types.TransactionId, error) {
	if tx.TransactionId.IsZero() {
		tx.TransactionId = types.NewTransactionId()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	if o.mempool.has(tx.TransactionId) {
		return tx.TransactionId, nil
	}

	if err := o.coordinator.Submit(ctx, tx); err != nil {
		return types.TransactionId{}, err
	}
	o.mempool.add(tx.TransactionId, tx.CreatedAt)
	o.metrics.recordSubmitted()
	if o.prom != nil {
		o.prom.transactionsSubmitted.Inc()
	}

	o.emit(Event{Kind: EventNewTransaction, Payload: NewTransactionPayload{Tx: tx}})
	return tx.TransactionId, nil
}

// Mempool returns the ids of every transaction still awaiting a terminal
// status (spec section 6 "GET /mempool").
func (o *Orchestrator) Mempool() []types.TransactionId {
	return o.mempool.pending()
}

// TransactionStatus returns a submitted transaction's current coordinator
// status.
func (o *Orchestrator) TransactionStatus(id types.TransactionId) (types.TransactionStatus, bool) {
	rec, ok := o.coordinator.Get(id)
	if !ok {
		return 0, false
	}
	return rec.Status, true
}
