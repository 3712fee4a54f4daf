// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store defines the durable, key-addressed persistence contract
// (SPEC_FULL.md section 4.B) consumed by every other component: sequenced
// transactions, sessions, blocks, and finality certificates. It intentionally
// exposes no query language (Non-goal: "providing an ORM"), only the
// primary keys and secondary indexes named in spec section 6.
package store

import (
	"context"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// Store is the durable persistence contract. Every method may return an
// error wrapped with errs.KindStorageFailure; callers decide retry policy.
type Store interface {
	PutPendingTransaction(ctx context.Context, domain types.DomainId, tx types.PendingTransaction) error
	GetPendingTransaction(ctx context.Context, domain types.DomainId, id types.TransactionId) (types.PendingTransaction, bool, error)
	DeletePendingTransaction(ctx context.Context, domain types.DomainId, id types.TransactionId) error

	// NextSequenceNumber atomically fetches-and-increments the per-domain
	// sequence counter. It is the sole source of truth recovered on
	// restart (spec section 4.C).
	NextSequenceNumber(ctx context.Context, domain types.DomainId) (uint64, error)
	PutSequencedTransaction(ctx context.Context, domain types.DomainId, tx types.SequencedTransaction) error
	GetSequencedTransaction(ctx context.Context, domain types.DomainId, seq uint64) (types.SequencedTransaction, bool, error)

	// SequenceBatch allocates contiguous sequence numbers for every tx in
	// txs and persists the resulting SequencedTransaction records together
	// with batch in one atomic operation: on error nothing is persisted and
	// no sequence number is consumed, so a partial failure can never leave
	// some of a batch's transactions sequenced while the rest are not
	// (spec section 7, "StorageFailure within a batch ... no partial
	// sequence numbers visible").
	SequenceBatch(ctx context.Context, domain types.DomainId, txs []types.PendingTransaction, batch types.TransactionBatch) ([]types.SequencedTransaction, error)

	PutBatch(ctx context.Context, batch types.TransactionBatch) error
	GetBatch(ctx context.Context, id types.BatchId) (types.TransactionBatch, bool, error)

	PutMediationSession(ctx context.Context, session types.MediationSession) error
	GetMediationSession(ctx context.Context, id types.TransactionId) (types.MediationSession, bool, error)

	PutConsensusSession(ctx context.Context, session types.ConsensusSession) error
	GetConsensusSession(ctx context.Context, id types.TransactionId) (types.ConsensusSession, bool, error)

	PutActiveTransaction(ctx context.Context, tx ActiveTransactionRecord) error
	GetActiveTransaction(ctx context.Context, id types.TransactionId) (ActiveTransactionRecord, bool, error)
	ListActiveTransactions(ctx context.Context) ([]ActiveTransactionRecord, error)

	PutBlock(ctx context.Context, block types.Block, info types.BlockInfo) error
	GetBlockByHeight(ctx context.Context, height uint64) (types.Block, types.BlockInfo, bool, error)
	// GetBlockByHash looks a block up by the BlockInfo.MerkleRoot it was
	// stored with, the only hash PutBlock indexes; the block header hash
	// (as computed by orchestrator.DefaultHashFn) is not indexed.
	GetBlockByHash(ctx context.Context, hash [32]byte) (types.Block, types.BlockInfo, bool, error)
	LatestHeight(ctx context.Context) (uint64, bool, error)

	PutFinalityCertificate(ctx context.Context, cert types.FinalityCertificate) error
	GetFinalityCertificate(ctx context.Context, height uint64) (types.FinalityCertificate, bool, error)

	PutTxBlockTag(ctx context.Context, id types.TransactionId, tag types.TxBlockTag) error
	GetTxBlockTag(ctx context.Context, id types.TransactionId) (types.TxBlockTag, bool, error)

	Close() error
}

// ActiveTransactionRecord is the durable projection of the coordinator's
// in-memory ActiveTransaction (coordinator.ActiveTransaction embeds the
// same fields; this type lives in store so the interface above does not
// import the coordinator package).
type ActiveTransactionRecord struct {
	Tx                   types.CrossDomainTransaction
	Status               types.TransactionStatus
	ParticipatingDomains []types.DomainId
	SettlementStatus     types.SettlementStatus
	CommittedDomains     []types.DomainId
	Confirmations        map[types.DomainId]bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
	TimeoutAt            time.Time
	RetryCount           int
	NextRetryAt          time.Time
	FailureReason        string
}
