// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"sync"
	"time"

	"github.com/luxfi/ids"
)

// HybridLogicalClock pairs physical time with a per-physical-tick logical
// counter, per spec section 4.A: tick resets the counter whenever wall
// clock time has visibly advanced, otherwise increments it.
type HybridLogicalClock struct {
	mu       sync.Mutex
	nodeID   ids.NodeID
	physical time.Time
	logical  uint64

	// nowFn is overridable in tests; defaults to time.Now.
	nowFn func() time.Time
}

var _ Clock = (*HybridLogicalClock)(nil)

// NewHybridLogicalClock creates an HLC owned by nodeID.
func NewHybridLogicalClock(nodeID ids.NodeID) *HybridLogicalClock {
	return &HybridLogicalClock{
		nodeID:   nodeID,
		physical: time.Now(),
		nowFn:    time.Now,
	}
}

func (h *HybridLogicalClock) Tick() Stamp {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFn()
	if now.After(h.physical) {
		h.physical = now
		h.logical = 0
	} else {
		h.logical++
	}
	return h.snapshot()
}

// Update merges an observed remote stamp: the physical component takes the
// max of local/remote/wall-clock; on a physical tie the logical counter
// takes max(local, remote)+1; when only the local or only the remote
// physical time is the max, it takes that side's logical+1; when wall-clock
// time is ahead of both, it resets to 0 (spec section 4.A).
func (h *HybridLogicalClock) Update(other Stamp) Stamp {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFn()

	maxPhysical := h.physical
	if other.Physical.After(maxPhysical) {
		maxPhysical = other.Physical
	}
	if now.After(maxPhysical) {
		maxPhysical = now
	}

	switch {
	case maxPhysical.Equal(h.physical) && maxPhysical.Equal(other.Physical):
		if other.Logical > h.logical {
			h.logical = other.Logical
		}
		h.logical++
	case maxPhysical.Equal(h.physical):
		h.logical++
	case maxPhysical.Equal(other.Physical):
		h.logical = other.Logical + 1
	default:
		h.logical = 0
	}
	h.physical = maxPhysical
	return h.snapshot()
}

func (h *HybridLogicalClock) Now() Stamp {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

func (h *HybridLogicalClock) snapshot() Stamp {
	return Stamp{NodeID: h.nodeID, Physical: h.physical, Logical: h.logical}
}

// Compare orders by (physical, logical, node id) lexicographically.
func (h *HybridLogicalClock) Compare(other Stamp) Ordering {
	mine := h.Now()
	switch {
	case mine.Physical.Before(other.Physical):
		return Before
	case mine.Physical.After(other.Physical):
		return After
	case mine.Logical < other.Logical:
		return Before
	case mine.Logical > other.Logical:
		return After
	case mine.NodeID == other.NodeID:
		return Equal
	case mine.NodeID.String() < other.NodeID.String():
		return Before
	default:
		return After
	}
}

func (h *HybridLogicalClock) TotalOrderKey() (int64, time.Time, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(h.logical), h.physical, h.nodeID.String()
}
