// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/synchronizer/canon"
	"github.com/luxfi/synchronizer/types"
)

// VoteMessage builds the canonical message a vote signature must cover:
// tx_id || participant_id || vote_bool (spec section 4.E "Vote
// verification"), via the shared canon.Message helper (resolved Open
// Question 2).
func VoteMessage(txID types.TransactionId, voter types.ParticipantId, vote bool) []byte {
	var voteByte [1]byte
	if vote {
		voteByte[0] = 1
	}
	return canon.Message(txID[:], []byte(voter), voteByte[:])
}

// VerifyVoteSignature validates a ConsensusVote's signature against the
// validator's registered public key.
func VerifyVoteSignature(publicKey []byte, txID types.TransactionId, v types.ConsensusVote) bool {
	pk, err := bls.PublicKeyFromBytes(publicKey)
	if err != nil {
		return false
	}
	sig, err := bls.SignatureFromBytes(v.Signature)
	if err != nil {
		return false
	}
	return bls.Verify(pk, sig, VoteMessage(txID, v.Voter, v.Vote))
}
