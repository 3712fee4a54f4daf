// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "time"

// MediationPriority orders sessions for scheduler attention only; sessions
// otherwise run concurrently (spec section 4.D).
type MediationPriority int

const (
	PriorityLow MediationPriority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// ConditionType enumerates the consent-condition kinds a participant may
// attach (spec section 4.D).
type ConditionType int

const (
	ConditionTimeWindow ConditionType = iota
	ConditionMaxAmount
	ConditionDependsOn
	ConditionCustom
)

// Condition is a tagged union over the four condition kinds. Only the
// fields relevant to Type are populated.
type Condition struct {
	Type ConditionType

	// TimeWindow
	Start, End time.Time

	// MaxAmount
	Amount   uint64
	Currency string

	// DependsOn
	DependsOnTx TransactionId

	// Custom
	Key, Value string
}

// ConsentInfo is a single participant's signed consent.
type ConsentInfo struct {
	Participant ParticipantId
	Consent     bool
	Reason      string
	Signature   []byte
	Timestamp   time.Time
	Conditions  []Condition
}

// MediationStatus is the mediation session's state machine.
type MediationStatus int

const (
	MediationWaitingForConsent MediationStatus = iota
	MediationValidating
	MediationApproved
	MediationRejected
	MediationTimedOut
	MediationCancelled
)

func (s MediationStatus) String() string {
	switch s {
	case MediationWaitingForConsent:
		return "WaitingForConsent"
	case MediationValidating:
		return "Validating"
	case MediationApproved:
		return "Approved"
	case MediationRejected:
		return "Rejected"
	case MediationTimedOut:
		return "TimedOut"
	case MediationCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether a mediation session in status s can ever
// transition again (spec section 4.D: terminal statuses are immutable).
func (s MediationStatus) Terminal() bool {
	switch s {
	case MediationApproved, MediationRejected, MediationTimedOut, MediationCancelled:
		return true
	default:
		return false
	}
}

// MediationResult records the outcome of a terminated mediation session.
type MediationResult struct {
	Status             MediationStatus
	At                 time.Time
	ConditionsMet      []string
	Reasons            []string
	RejectingParticipants []ParticipantId
	MissingConsents    []ParticipantId
	CancelReason       string
}

// MediationSession is a single transaction's consent-collection round.
type MediationSession struct {
	TransactionId        TransactionId
	EncryptedData        []byte
	RequiredParticipants []ParticipantId
	Consents             map[ParticipantId]ConsentInfo
	AffectedContracts    []ContractId
	Status               MediationStatus
	CreatedAt            time.Time
	TimeoutAt            time.Time
	Dependencies         []TransactionId
	Priority             MediationPriority
	Result               *MediationResult
}
