// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "github.com/luxfi/synchronizer/types"

// QuorumRatioThousandths expresses quorum as thousandths of required weight
// (spec section 6 "quorum_ratio_thousandths ∈ (0,1000]").
type QuorumRatioThousandths uint32

// RequiredQuorum computes ⌈totalWeight × ratio / 1000⌉ (spec section 4.E
// "Quorum policy"). totalWeight is the sum-of-weights of the session's
// required_participants, not the full active validator set.
func RequiredQuorum(totalWeight uint64, ratio QuorumRatioThousandths) uint64 {
	if ratio == 0 {
		ratio = 1000
	}
	num := totalWeight * uint64(ratio)
	q := num / 1000
	if num%1000 != 0 {
		q++
	}
	return q
}

// SatisfiesBFTMinimum reports |required| >= 3f+1 for a Byzantine threshold f
// (spec section 4.E). Non-BFT deployments pass f=0, which this always
// satisfies for any non-empty required set.
func SatisfiesBFTMinimum(requiredCount int, byzantineThreshold int) bool {
	return requiredCount >= 3*byzantineThreshold+1
}

// WeightLookup resolves a participant's registered voting power, defaulting
// unknown entries to zero (spec section 4.E "Weighted voting").
type WeightLookup func(types.ParticipantId) uint64

// SumWeights sums the voting power of a set of participants.
func SumWeights(voters []types.ParticipantId, weight WeightLookup) uint64 {
	var total uint64
	for _, v := range voters {
		total += weight(v)
	}
	return total
}
