// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sync"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// session wraps a types.ConsensusSession with the lock that serializes
// concurrent vote submissions against it (spec section 5, single-writer
// discipline per session).
type session struct {
	mu   sync.Mutex
	data types.ConsensusSession
}

func newSession(txID types.TransactionId, required []types.ParticipantId, domain types.DomainId, encryptedData []byte, timeout time.Duration, requireUnanimous bool, now time.Time) *session {
	return &session{
		data: types.ConsensusSession{
			TransactionId:        txID,
			RequiredParticipants: required,
			Votes:                make(map[types.ParticipantId]types.ConsensusVote),
			Phase:                types.PhaseVoting,
			CreatedAt:            now,
			Timeout:              now.Add(timeout),
			DomainId:             domain,
			EncryptedData:        encryptedData,
			RequireUnanimous:     requireUnanimous,
		},
	}
}

func (s *session) snapshot() types.ConsensusSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.data
	cp.Votes = make(map[types.ParticipantId]types.ConsensusVote, len(s.data.Votes))
	for k, v := range s.data.Votes {
		cp.Votes[k] = v
	}
	cp.RequiredParticipants = append([]types.ParticipantId(nil), s.data.RequiredParticipants...)
	return cp
}
