// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport provides the in-process topic bus standing in for the
// Kafka glue named as an external collaborator in spec section 6. It
// carries the same message union and partition-key derivation the
// original's `kafka.rs` defines, without requiring a running broker.
package transport

import (
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/synchronizer/clock"
	"github.com/luxfi/synchronizer/types"
)

// Topic names the four logical channels of spec section 6 ("Inter-node
// transport").
type Topic string

const (
	TopicTransactions Topic = "transactions"
	TopicConsensus    Topic = "consensus"
	TopicParticipants Topic = "participants"
	TopicEvents       Topic = "events"
)

// Kind discriminates the payload carried by a Message (the KafkaMessage
// union of `original_source/sync-domain/src/kafka.rs`, renamed to this
// repo's types).
type Kind int

const (
	KindTransactionSubmitted Kind = iota
	KindTransactionSequenced
	KindConsensusVote
	KindConsensusResult
	KindParticipantJoined
	KindParticipantLeft
	KindDomainEvent
	KindHealthPing
	KindBatchCompleted
)

func (k Kind) String() string {
	switch k {
	case KindTransactionSubmitted:
		return "TransactionSubmitted"
	case KindTransactionSequenced:
		return "TransactionSequenced"
	case KindConsensusVote:
		return "ConsensusVote"
	case KindConsensusResult:
		return "ConsensusResult"
	case KindParticipantJoined:
		return "ParticipantJoined"
	case KindParticipantLeft:
		return "ParticipantLeft"
	case KindDomainEvent:
		return "DomainEvent"
	case KindHealthPing:
		return "HealthPing"
	case KindBatchCompleted:
		return "BatchCompleted"
	default:
		return "Unknown"
	}
}

// Message is the envelope every publish carries: a discriminated payload
// plus the sender's identity and causal clock, so a subscriber can
// causally order messages from multiple senders without a shared physical
// clock (spec section 6, "Messages carry sender node_id and the sender's
// vector clock").
type Message struct {
	Kind         Kind
	Topic        Topic
	Key          []byte
	SenderNodeID ids.NodeID
	SenderClock  clock.Stamp
	Timestamp    time.Time
	Payload      any
}

// TransactionSubmittedPayload announces a transaction handed to the
// sequencer.
type TransactionSubmittedPayload struct {
	TransactionId types.TransactionId
	EncryptedData []byte
	Participants  []types.ParticipantId
	DomainId      types.DomainId
}

// TransactionSequencedPayload announces a transaction's assigned sequence
// number.
type TransactionSequencedPayload struct {
	SequenceNumber uint64
	TransactionId  types.TransactionId
	BatchId        *types.BatchId
	DomainId       types.DomainId
}

// ConsensusVotePayload mirrors consensus.Manager.HandleVote's input.
type ConsensusVotePayload struct {
	TransactionId types.TransactionId
	Vote          types.ConsensusVote
}

// ConsensusResultPayload announces a terminal consensus outcome.
type ConsensusResultPayload struct {
	TransactionId types.TransactionId
	Result        types.ConsensusResult
}

// ParticipantJoinedPayload announces a participant's admission to a domain.
type ParticipantJoinedPayload struct {
	ParticipantId types.ParticipantId
	DomainId      types.DomainId
	PublicKey     []byte
	Endpoint      string
}

// ParticipantLeftPayload announces a participant's departure.
type ParticipantLeftPayload struct {
	ParticipantId types.ParticipantId
	DomainId      types.DomainId
	Reason        string
}

// DomainEventPayload carries an opaque, domain-specific event.
type DomainEventPayload struct {
	EventId  [16]byte
	DomainId types.DomainId
	Type     string
	Data     []byte
}

// HealthPingPayload is a liveness heartbeat.
type HealthPingPayload struct {
	NodeId   string
	DomainId types.DomainId
}

// BatchCompletedPayload announces a sealed, sequenced batch.
type BatchCompletedPayload struct {
	BatchId          types.BatchId
	TransactionCount int
	DomainId         types.DomainId
}

// KeyFor derives a partition-affinity key from the most specific
// identifier available on msg's payload (tx_id, participant_id, or
// batch_id), matching `kafka.rs`'s "Keys are derived from tx_id ... for
// partition affinity" (spec section 6).
func KeyFor(payload any) []byte {
	switch p := payload.(type) {
	case TransactionSubmittedPayload:
		return p.TransactionId[:]
	case TransactionSequencedPayload:
		return p.TransactionId[:]
	case ConsensusVotePayload:
		return p.TransactionId[:]
	case ConsensusResultPayload:
		return p.TransactionId[:]
	case ParticipantJoinedPayload:
		return []byte(p.ParticipantId)
	case ParticipantLeftPayload:
		return []byte(p.ParticipantId)
	case BatchCompletedPayload:
		return p.BatchId[:]
	default:
		return nil
	}
}
