// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "github.com/luxfi/synchronizer/types"

// Jailer marks a validator Jailed for the configured duration when double
// signing is proven. It is the narrow seam between consensus (decision) and
// validator.Registry (data), matching SPEC_FULL.md section 4.H: "the
// consensus manager calls into it, it does not decide on its own."
type Jailer interface {
	Jail(participant types.ParticipantId, untilUnixSeconds int64) error
}

// detectDoubleSign reports whether a newly-received vote from participant in
// view conflicts with a vote already on file for the same (transaction,
// view) pair (spec section 4.E "Jailing (adjudication)": two distinct votes
// on the same tx in the same view).
func detectDoubleSign(existing map[types.ParticipantId]types.ConsensusVote, incoming types.ConsensusVote) bool {
	prior, ok := existing[incoming.Voter]
	if !ok {
		return false
	}
	return prior.View == incoming.View && prior.Vote != incoming.Vote
}
