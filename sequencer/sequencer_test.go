// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/internal/logtest"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
)

func newTestSequencer(t *testing.T, batchSize int) (*Sequencer, store.Store) {
	t.Helper()
	st := store.NewMemory()
	cfg := Config{
		DomainID:                  "domain-a",
		TransactionBatchSize:      batchSize,
		BatchTimeoutMS:            50,
		MaxConcurrentTransactions: 8,
		ProcessingInterval:        time.Millisecond,
	}
	return New(cfg, st, DefaultPriorityCalculator{}, logtest.Nop{}, nil), st
}

func makeTx(priority uint8, size int) types.PendingTransaction {
	return types.PendingTransaction{
		TransactionId: types.NewTransactionId(),
		Metadata: types.TransactionMetadata{
			DeclaredPriority: priority,
			SizeBytes:        size,
		},
		ReceivedAt: time.Now(),
	}
}

func TestDefaultPriorityCalculatorBoosts(t *testing.T) {
	calc := DefaultPriorityCalculator{}
	now := time.Now()

	soon := now.Add(2 * time.Minute)
	tx := makeTx(10, 500)
	tx.Metadata.ExpiresAt = &soon
	tx.Metadata.TransactionType = "AssetTransfer"
	p := calc.CalculatePriority(&tx, now)
	// 10 (base) + 50 (expiry<5m) + 10 (size<1KiB) + 30 (AssetTransfer) = 100
	require.Equal(t, uint8(100), p)
}

func TestDefaultPriorityCalculatorSaturates(t *testing.T) {
	calc := DefaultPriorityCalculator{}
	now := time.Now()
	soon := now.Add(time.Minute)
	tx := makeTx(250, 10)
	tx.Metadata.ExpiresAt = &soon
	p := calc.CalculatePriority(&tx, now)
	require.Equal(t, uint8(255), p)
}

func TestSequencerSequenceNumbersContiguousAndGapFree(t *testing.T) {
	seq, st := newTestSequencer(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, seq.Submit(makeTx(uint8(i), 100)))
	}

	seq.Start(ctx)
	require.Eventually(t, func() bool {
		m := seq.Metrics()
		return m.TotalTransactions == 10
	}, time.Second, time.Millisecond)
	seq.Stop()

	for i := uint64(0); i < 10; i++ {
		_, ok, err := st.GetSequencedTransaction(context.Background(), "domain-a", i)
		require.NoError(t, err)
		require.Truef(t, ok, "sequence number %d missing", i)
	}
}

func TestSequencerHigherPriorityDrainsFirst(t *testing.T) {
	seq, _ := newTestSequencer(t, 100) // large batch size: won't seal mid-test
	require.NoError(t, seq.Submit(makeTx(5, 100)))
	require.NoError(t, seq.Submit(makeTx(200, 100)))
	require.NoError(t, seq.Submit(makeTx(50, 100)))

	tx1, ok := seq.popHighestPriority()
	require.True(t, ok)
	require.Equal(t, uint8(210), tx1.ComputedPriority) // 200 declared + 10 for size < 1 KiB

	tx2, ok := seq.popHighestPriority()
	require.True(t, ok)
	require.Equal(t, uint8(60), tx2.ComputedPriority) // 50 declared + 10 for size < 1 KiB
}

func TestSequencerStorageFailureReturnsTransactionsToQueue(t *testing.T) {
	seq, _ := newTestSequencer(t, 2)
	failing := &failingStore{Store: store.NewMemory(), failAfter: 0}
	seq.store = failing

	require.NoError(t, seq.Submit(makeTx(10, 100)))
	require.NoError(t, seq.Submit(makeTx(20, 100)))

	seq.tick(context.Background()) // admits one tx, may or may not seal
	// force a seal attempt against the failing store
	seq.sealAndSequence(context.Background())

	require.NotEmpty(t, seq.sortedPriorities(), "failed batch must return its transactions to the priority buckets")
}

func TestSequencerRetryAfterStorageFailureLeavesNoGapOrDuplicate(t *testing.T) {
	// Batch size 1 so every tick seals exactly one transaction, making the
	// first seal's failure and the retried seals each independently
	// observable.
	seq, st := newTestSequencer(t, 1)
	onceFailing := &failOnceStore{Store: st}
	seq.store = onceFailing

	require.NoError(t, seq.Submit(makeTx(10, 100)))
	require.NoError(t, seq.Submit(makeTx(20, 100)))

	seq.tick(context.Background()) // admits the higher-priority tx, seal fails atomically
	require.NotEmpty(t, seq.sortedPriorities(), "failed batch must return its transaction to the priority buckets")

	seq.tick(context.Background()) // retried seal succeeds, gets sequence number 0
	seq.tick(context.Background()) // the other tx seals, gets sequence number 1
	require.Empty(t, seq.sortedPriorities())

	for i := uint64(0); i < 2; i++ {
		_, ok, err := st.GetSequencedTransaction(context.Background(), "domain-a", i)
		require.NoError(t, err)
		require.Truef(t, ok, "sequence number %d missing after retry", i)
	}
	_, ok, err := st.GetSequencedTransaction(context.Background(), "domain-a", 2)
	require.NoError(t, err)
	require.False(t, ok, "no sequence number beyond the two submitted transactions should exist")
}

// failOnceStore fails the first SequenceBatch call and delegates every
// subsequent one to the wrapped Store, exercising that a failed attempt
// consumes no sequence numbers and leaves no partial records behind.
type failOnceStore struct {
	store.Store
	failed bool
}

func (f *failOnceStore) SequenceBatch(ctx context.Context, domain types.DomainId, txs []types.PendingTransaction, batch types.TransactionBatch) ([]types.SequencedTransaction, error) {
	if !f.failed {
		f.failed = true
		return nil, assertErr
	}
	return f.Store.SequenceBatch(ctx, domain, txs, batch)
}

// failingStore wraps store.Memory and fails every SequenceBatch call,
// exercising the §7 "StorageFailure within a batch" propagation policy.
type failingStore struct {
	store.Store
	failAfter int
}

func (f *failingStore) SequenceBatch(ctx context.Context, domain types.DomainId, txs []types.PendingTransaction, batch types.TransactionBatch) ([]types.SequencedTransaction, error) {
	return nil, assertErr
}

var assertErr = errTest("storage unavailable")

type errTest string

func (e errTest) Error() string { return string(e) }
