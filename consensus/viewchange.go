// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "github.com/luxfi/synchronizer/types"

// NextLeader deterministically elects the leader for view+1 by rotating
// through the currently active validator set (spec section 4.E "View
// change": `(view_number + 1) mod |active_validators|`). active must be
// sorted deterministically by the caller so every node computes the same
// leader.
func NextLeader(view uint64, active []types.ParticipantId) (types.ParticipantId, bool) {
	if len(active) == 0 {
		return "", false
	}
	idx := int((view + 1) % uint64(len(active)))
	return active[idx], true
}
