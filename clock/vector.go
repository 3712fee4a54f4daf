// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"sync"
	"time"

	"github.com/luxfi/ids"
)

// VectorClock provides causal (partial) ordering via a per-node counter
// map, per original_source/sync-domain/src/vector_clock.rs.
type VectorClock struct {
	mu       sync.Mutex
	nodeID   ids.NodeID
	counters map[ids.NodeID]uint64
	physical time.Time
}

var _ Clock = (*VectorClock)(nil)

// NewVectorClock creates a clock owned by nodeID, seeded with zero counters
// for the given peer set (nodeID is always included).
func NewVectorClock(nodeID ids.NodeID, peers ...ids.NodeID) *VectorClock {
	counters := make(map[ids.NodeID]uint64, len(peers)+1)
	for _, p := range peers {
		counters[p] = 0
	}
	counters[nodeID] = 0
	return &VectorClock{
		nodeID:   nodeID,
		counters: counters,
		physical: time.Now(),
	}
}

func (v *VectorClock) Tick() Stamp {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters[v.nodeID]++
	v.physical = time.Now()
	return v.snapshot()
}

// Update merges other's counters by per-key max, then ticks the local
// counter, per spec section 4.A.
func (v *VectorClock) Update(other Stamp) Stamp {
	v.mu.Lock()
	defer v.mu.Unlock()
	for node, value := range other.Vector {
		if cur := v.counters[node]; value > cur {
			v.counters[node] = value
		}
	}
	v.counters[v.nodeID]++
	v.physical = time.Now()
	return v.snapshot()
}

func (v *VectorClock) Now() Stamp {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot()
}

func (v *VectorClock) snapshot() Stamp {
	cp := make(map[ids.NodeID]uint64, len(v.counters))
	for k, val := range v.counters {
		cp[k] = val
	}
	return Stamp{NodeID: v.nodeID, Vector: cp, Physical: v.physical}
}

// Compare implements the dominance check of spec section 4.A: Concurrent
// iff neither stamp pointwise-dominates the other; Equal iff every entry
// matches (missing entries default to 0).
func (v *VectorClock) Compare(other Stamp) Ordering {
	v.mu.Lock()
	mine := v.snapshot()
	v.mu.Unlock()
	return CompareVectors(mine.Vector, other.Vector)
}

// CompareVectors is the pure comparison function, exposed for ordering
// already-captured stamps (e.g. sorting a batch of received events)
// without needing a live Clock instance.
func CompareVectors(a, b map[ids.NodeID]uint64) Ordering {
	allNodes := make(map[ids.NodeID]struct{}, len(a)+len(b))
	for n := range a {
		allNodes[n] = struct{}{}
	}
	for n := range b {
		allNodes[n] = struct{}{}
	}

	less, greater := false, false
	for n := range allNodes {
		av, bv := a[n], b[n]
		switch {
		case av < bv:
			less = true
		case av > bv:
			greater = true
		}
	}

	switch {
	case !less && !greater:
		return Equal
	case less && !greater:
		return Before
	case !less && greater:
		return After
	default:
		return Concurrent
	}
}

// TotalOrderKey returns (sum-of-counters, physical-time, node-id) for
// deterministic sorting of Concurrent events (spec section 4.A).
func (v *VectorClock) TotalOrderKey() (int64, time.Time, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var sum int64
	for _, c := range v.counters {
		sum += int64(c)
	}
	return sum, v.physical, v.nodeID.String()
}
