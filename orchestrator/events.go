// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/synchronizer/types"
)

// EventKind discriminates the payload carried by an Event (the
// GlobalSyncEvent union of original_source/global-synchronizer/src/
// synchronizer.rs, collapsed into a single chan Event rather than a
// per-event-kind fan-out).
type EventKind int

const (
	EventNewTransaction EventKind = iota
	EventConsensusResult
	EventSettlementResult
	EventBlockProposed
	EventBlockFinalized
	EventValidatorJoined
	EventValidatorLeft
	EventHealthCheck
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventNewTransaction:
		return "NewTransaction"
	case EventConsensusResult:
		return "ConsensusResult"
	case EventSettlementResult:
		return "SettlementResult"
	case EventBlockProposed:
		return "BlockProposed"
	case EventBlockFinalized:
		return "BlockFinalized"
	case EventValidatorJoined:
		return "ValidatorJoined"
	case EventValidatorLeft:
		return "ValidatorLeft"
	case EventHealthCheck:
		return "HealthCheck"
	case EventShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Event is the orchestrator's single internal event sum type: one channel,
// one consumer goroutine, a switch on Kind (spec section 9 "single event
// channel, no per-event goroutines").
type Event struct {
	Kind    EventKind
	Payload any
}

// NewTransactionPayload carries a freshly-submitted transaction into
// consensus.
type NewTransactionPayload struct {
	Tx types.CrossDomainTransaction
}

// ConsensusResultPayload carries a terminated consensus session's outcome.
type ConsensusResultPayload struct {
	TransactionId types.TransactionId
	Result        types.ConsensusResult
}

// SettlementResultPayload carries a settlement attempt's outcome, used when
// settlement is driven out of band from HandleConsensusResult (Batched/
// Scheduled/OnDemand modes) and reported back asynchronously.
type SettlementResultPayload struct {
	TransactionId types.TransactionId
	Success       bool
	Error         string
}

// BlockProposedPayload carries a candidate block awaiting votes.
type BlockProposedPayload struct {
	Block types.Block
}

// BlockFinalizedPayload carries a block that has collected enough votes to
// finalize.
type BlockFinalizedPayload struct {
	Block      types.Block
	Hash       [32]byte
	Signatures [][]byte
}

// ValidatorJoinedPayload announces a validator's admission.
type ValidatorJoinedPayload struct {
	NodeID      ids.NodeID
	PublicKey   []byte
	VotingPower uint64
}

// ValidatorLeftPayload announces a validator's departure.
type ValidatorLeftPayload struct {
	NodeID ids.NodeID
}
