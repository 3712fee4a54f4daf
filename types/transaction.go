// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"time"

	"github.com/luxfi/synchronizer/errs"
)

// MaxPayloadBytes is the hard cap on CrossDomainTransaction.Data (spec section 3).
const MaxPayloadBytes = 1 << 20 // 1 MiB

// TransactionType enumerates the kinds of cross-domain transaction.
type TransactionType int

const (
	AssetTransfer TransactionType = iota
	ContractCall
	StateSync
	Composite
)

func (t TransactionType) String() string {
	switch t {
	case AssetTransfer:
		return "AssetTransfer"
	case ContractCall:
		return "ContractCall"
	case StateSync:
		return "StateSync"
	case Composite:
		return "Composite"
	default:
		return "Unknown"
	}
}

// CrossDomainTransaction is the canonical, orchestrator-owned representation
// of a transaction submitted for cross-domain coordination.
type CrossDomainTransaction struct {
	TransactionId         TransactionId
	SourceDomain          DomainId
	TargetDomains         []DomainId // ordered, non-empty
	TransactionType       TransactionType
	Data                  []byte // opaque, <= MaxPayloadBytes
	RequiredConfirmations int    // 1..=len(TargetDomains)
	Dependencies          []TransactionId
	CreatedAt             time.Time
	TimeoutAt             time.Time
	Metadata              map[string]string
}

// Validate enforces the invariants of spec section 3: non-empty targets,
// 1 <= RequiredConfirmations <= len(TargetDomains), payload within bound,
// and TimeoutAt strictly after CreatedAt. It does not check the dependency
// cycle invariant, which requires a view of other transactions (see
// coordinator.DetectCycle).
func (tx *CrossDomainTransaction) Validate() error {
	const component = "types.CrossDomainTransaction"
	if len(tx.TargetDomains) == 0 {
		return errs.New(errs.KindInvalidInput, component, "target_domains must be non-empty")
	}
	if tx.RequiredConfirmations < 1 || tx.RequiredConfirmations > len(tx.TargetDomains) {
		return errs.New(errs.KindInvalidInput, component, "required_confirmations out of range")
	}
	if len(tx.Data) > MaxPayloadBytes {
		return errs.New(errs.KindInvalidInput, component, "payload exceeds 1 MiB")
	}
	if !tx.TimeoutAt.After(tx.CreatedAt) {
		return errs.New(errs.KindInvalidInput, component, "timeout_at must be after created_at")
	}
	for _, dep := range tx.Dependencies {
		if dep == tx.TransactionId {
			return errs.New(errs.KindInvalidInput, component, "transaction cannot depend on itself")
		}
	}
	return nil
}

// TransactionStatus is the orchestrator/coordinator-visible lifecycle state
// of a CrossDomainTransaction (invariant 2, spec section 8).
type TransactionStatus int

const (
	StatusReceived TransactionStatus = iota
	StatusConsensusInProgress
	StatusConsensusReached
	StatusSettlementInProgress
	StatusFinalized
	StatusFailed
	StatusTimedOut
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusReceived:
		return "Received"
	case StatusConsensusInProgress:
		return "ConsensusInProgress"
	case StatusConsensusReached:
		return "ConsensusReached"
	case StatusSettlementInProgress:
		return "SettlementInProgress"
	case StatusFinalized:
		return "Finalized"
	case StatusFailed:
		return "Failed"
	case StatusTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// SettlementStatus is the per-domain settlement sub-state of an
// ActiveTransaction, distinct from the coarser TransactionStatus (spec
// section 4.F "Settlement modes").
type SettlementStatus int

const (
	SettlementNotStarted SettlementStatus = iota
	SettlementInProgress
	SettlementCompleted
	SettlementFailed
	SettlementRolledBack
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementNotStarted:
		return "NotStarted"
	case SettlementInProgress:
		return "InProgress"
	case SettlementCompleted:
		return "Completed"
	case SettlementFailed:
		return "Failed"
	case SettlementRolledBack:
		return "RolledBack"
	default:
		return "Unknown"
	}
}

// precedes returns true if a must occur before b in the monotone lifecycle
// Received -> ConsensusInProgress -> ConsensusReached ->
// SettlementInProgress -> Finalized. Failed/TimedOut are reachable from any
// non-terminal predecessor state.
func precedes(a, b TransactionStatus) bool {
	order := map[TransactionStatus]int{
		StatusReceived:             0,
		StatusConsensusInProgress:  1,
		StatusConsensusReached:     2,
		StatusSettlementInProgress: 3,
		StatusFinalized:            4,
	}
	ai, aok := order[a]
	bi, bok := order[b]
	return aok && bok && ai < bi
}

// ValidTransition reports whether from -> to is an allowed lifecycle step,
// enforcing invariant 2 of spec section 8.
func ValidTransition(from, to TransactionStatus) bool {
	switch to {
	case StatusFailed, StatusTimedOut:
		return from != StatusFinalized && from != StatusFailed && from != StatusTimedOut
	default:
		return precedes(from, to) || from == to
	}
}
