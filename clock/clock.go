// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clock implements the vector, Lamport, and hybrid-logical clock
// variants that causally order every event crossing a component boundary,
// plus the peer-liveness table used to mark suspected/failed nodes.
package clock

import (
	"time"

	"github.com/luxfi/ids"
)

// Ordering is the result of comparing two clock stamps.
type Ordering int

const (
	Before Ordering = iota
	After
	Equal
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "Before"
	case After:
		return "After"
	case Equal:
		return "Equal"
	default:
		return "Concurrent"
	}
}

// Clock is satisfied by every variant (vector, Lamport, hybrid-logical).
// Stamp values are immutable snapshots; Tick/Update return the new stamp
// and also become the clock's current state.
type Clock interface {
	// Tick monotonically advances the local component and returns the new stamp.
	Tick() Stamp
	// Update merges an observed remote stamp into the local clock, then ticks.
	Update(other Stamp) Stamp
	// Compare orders the clock's current stamp against another.
	Compare(other Stamp) Ordering
	// Now returns the current stamp without advancing it.
	Now() Stamp
	// TotalOrderKey yields a tuple suitable for deterministically breaking
	// ties between Concurrent events.
	TotalOrderKey() (sum int64, physical time.Time, node string)
}

// Stamp is the serializable snapshot of any Clock variant. Only the fields
// relevant to the owning variant are populated; Compare/merge logic lives
// on the owning Clock, not on Stamp itself, since vector/Lamport/HLC
// comparison rules differ.
type Stamp struct {
	NodeID    ids.NodeID
	Vector    map[ids.NodeID]uint64 // VectorClock
	Logical   uint64                // Lamport / HLC logical component
	Physical  time.Time
	NodeHash  uint64 // Lamport tie-break
}

// Clone returns a deep copy of the stamp's vector, safe to retain after the
// owning clock advances.
func (s Stamp) Clone() Stamp {
	cp := s
	if s.Vector != nil {
		cp.Vector = make(map[ids.NodeID]uint64, len(s.Vector))
		for k, v := range s.Vector {
			cp.Vector[k] = v
		}
	}
	return cp
}
