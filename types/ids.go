// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the wire/data model shared by every coordination
// component: transaction identifiers, the cross-domain transaction and its
// sequencer/mediator/consensus projections, and blocks.
package types

import (
	"github.com/google/uuid"
)

// TransactionId is an opaque 128-bit identifier generated at submission.
type TransactionId [16]byte

// NewTransactionId generates a fresh random TransactionId.
func NewTransactionId() TransactionId {
	return TransactionId(uuid.New())
}

func (t TransactionId) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the zero value (never a valid generated id).
func (t TransactionId) IsZero() bool {
	return t == TransactionId{}
}

// ParticipantId identifies a signing principal: signatory, observer,
// controller, or validator.
type ParticipantId string

// DomainId identifies a synchronization domain.
type DomainId string

// BatchId identifies a sealed batch of sequenced transactions.
type BatchId [16]byte

// NewBatchId generates a fresh random BatchId.
func NewBatchId() BatchId {
	return BatchId(uuid.New())
}

func (b BatchId) String() string {
	return uuid.UUID(b).String()
}

// ContractId identifies a contract affected by a transaction.
type ContractId string
