// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "time"

// TransactionMetadata is the submitter-declared envelope around an
// encrypted payload: everything the sequencer is allowed to look at
// without decrypting PendingTransaction.EncryptedData.
type TransactionMetadata struct {
	Participants     []ParticipantId
	TransactionType  string
	DeclaredPriority uint8
	SizeBytes        int
	Hash             [32]byte
	Dependencies     []TransactionId
	ExpiresAt        *time.Time
}

// PendingTransaction is the sequencer's input: an opaque ciphertext plus
// the metadata needed to prioritize and batch it.
type PendingTransaction struct {
	TransactionId            TransactionId
	EncryptedData            []byte
	Metadata                 TransactionMetadata
	ReceivedAt                time.Time
	DomainId                  DomainId
	ComputedPriority          uint8
	EstimatedProcessingTime   time.Duration
}

// SequenceStatus is the lifecycle of a SequencedTransaction.
type SequenceStatus int

const (
	SeqPending SequenceStatus = iota
	SeqSequenced
	SeqProcessing
	SeqCompleted
	SeqFailed
)

// SequencedTransaction is a PendingTransaction after a sequence number has
// been assigned within a batch.
type SequencedTransaction struct {
	PendingTransaction
	SequenceNumber uint64 // strictly monotone, gap-free per domain
	BatchId        BatchId
	SequencedAt    time.Time
	Status         SequenceStatus
}

// BatchStatus is the lifecycle of a TransactionBatch.
type BatchStatus int

const (
	BatchBuilding BatchStatus = iota
	BatchReady
	BatchProcessing
	BatchCompleted
	BatchFailed
)

// TransactionBatch groups PendingTransactions sequenced together; ordering
// within Transactions is priority descending, then insertion order.
type TransactionBatch struct {
	BatchId      BatchId
	Transactions []PendingTransaction
	CreatedAt    time.Time
	TotalBytes   int
	Status       BatchStatus
}
