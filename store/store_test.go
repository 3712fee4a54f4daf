// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/types"
)

func TestMemorySequenceNumbersContiguous(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	domain := types.DomainId("d1")

	for i := uint64(0); i < 5; i++ {
		n, err := m.NextSequenceNumber(ctx, domain)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
}

func TestMemorySequenceBatchAllocatesContiguousNumbers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	domain := types.DomainId("d1")

	txs := []types.PendingTransaction{
		{TransactionId: types.NewTransactionId()},
		{TransactionId: types.NewTransactionId()},
		{TransactionId: types.NewTransactionId()},
	}
	batch := types.TransactionBatch{BatchId: types.NewBatchId(), Transactions: txs}

	sequenced, err := m.SequenceBatch(ctx, domain, txs, batch)
	require.NoError(t, err)
	require.Len(t, sequenced, 3)
	for i, st := range sequenced {
		require.Equal(t, uint64(i), st.SequenceNumber)
	}

	more := []types.PendingTransaction{{TransactionId: types.NewTransactionId()}}
	nextBatch := types.TransactionBatch{BatchId: types.NewBatchId(), Transactions: more}
	nextSequenced, err := m.SequenceBatch(ctx, domain, more, nextBatch)
	require.NoError(t, err)
	require.Len(t, nextSequenced, 1)
	require.Equal(t, uint64(3), nextSequenced[0].SequenceNumber, "sequence numbers continue contiguously across calls")
}

func TestMemoryDuplicateSequenceNumberRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	domain := types.DomainId("d1")

	tx := types.SequencedTransaction{SequenceNumber: 0}
	require.NoError(t, m.PutSequencedTransaction(ctx, domain, tx))
	require.Error(t, m.PutSequencedTransaction(ctx, domain, tx))
}

func TestMemoryFinalityCertificateUniquePerHeight(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PutFinalityCertificate(ctx, types.FinalityCertificate{Height: 1}))
	require.Error(t, m.PutFinalityCertificate(ctx, types.FinalityCertificate{Height: 1}))
}

func TestMemoryLatestHeightTracksMax(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PutBlock(ctx, types.Block{Height: 3}, types.BlockInfo{Height: 3}))
	require.NoError(t, m.PutBlock(ctx, types.Block{Height: 1}, types.BlockInfo{Height: 1}))
	h, ok, err := m.LatestHeight(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), h)
}
