// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mediator

import (
	"sync"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// validMediationTransition enforces the state machine of spec section 4.D:
// WaitingForConsent -> Validating -> {Approved, Rejected, TimedOut}, and
// WaitingForConsent may also move to Approved, Rejected or TimedOut
// directly; Cancelled is reachable only from WaitingForConsent. All four right-hand
// statuses are terminal (types.MediationStatus.Terminal).
func validMediationTransition(from, to types.MediationStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case types.MediationValidating:
		return from == types.MediationWaitingForConsent
	case types.MediationApproved, types.MediationRejected, types.MediationTimedOut:
		return from == types.MediationValidating || from == types.MediationWaitingForConsent
	case types.MediationCancelled:
		return from == types.MediationWaitingForConsent
	default:
		return false
	}
}

// session wraps a types.MediationSession with the lock that serializes
// concurrent consent submissions against it (spec section 5, single-writer
// discipline per session).
type session struct {
	mu   sync.Mutex
	data types.MediationSession
}

func newSession(tx types.CrossDomainTransaction, required []types.ParticipantId, priority types.MediationPriority, timeout time.Duration, now time.Time) *session {
	return &session{
		data: types.MediationSession{
			TransactionId:        tx.TransactionId,
			RequiredParticipants: required,
			Consents:             make(map[types.ParticipantId]types.ConsentInfo),
			Status:               types.MediationWaitingForConsent,
			CreatedAt:            now,
			TimeoutAt:            now.Add(timeout),
			Dependencies:         tx.Dependencies,
			Priority:             priority,
		},
	}
}

// snapshot returns a value copy of the session's data under lock, matching
// the copy-out-then-process discipline used across the repo (spec section 5).
func (s *session) snapshot() types.MediationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.data
	cp.Consents = make(map[types.ParticipantId]types.ConsentInfo, len(s.data.Consents))
	for k, v := range s.data.Consents {
		cp.Consents[k] = v
	}
	return cp
}

// transition moves the session to a new status if the move is legal,
// stamping the result when the destination is terminal.
func (s *session) transition(to types.MediationStatus, result *types.MediationResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validMediationTransition(s.data.Status, to) {
		return false
	}
	s.data.Status = to
	if to.Terminal() {
		s.data.Result = result
	}
	return true
}
