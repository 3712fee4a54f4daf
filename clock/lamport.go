// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/luxfi/ids"
)

// LamportClock provides a single logical counter plus physical time and a
// node-hash tie-break for total ordering, per spec section 4.A.
type LamportClock struct {
	mu       sync.Mutex
	nodeID   ids.NodeID
	nodeHash uint64
	logical  uint64
	physical time.Time
}

var _ Clock = (*LamportClock)(nil)

// NewLamportClock creates a Lamport clock owned by nodeID.
func NewLamportClock(nodeID ids.NodeID) *LamportClock {
	return &LamportClock{
		nodeID:   nodeID,
		nodeHash: hashNodeID(nodeID),
		physical: time.Now(),
	}
}

func hashNodeID(n ids.NodeID) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.String()))
	return h.Sum64()
}

func (l *LamportClock) Tick() Stamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logical++
	l.physical = time.Now()
	return l.snapshot()
}

// Update advances the logical counter past the observed value, per the
// standard Lamport rule: logical = max(local, other) + 1.
func (l *LamportClock) Update(other Stamp) Stamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	if other.Logical > l.logical {
		l.logical = other.Logical
	}
	l.logical++
	l.physical = time.Now()
	return l.snapshot()
}

func (l *LamportClock) Now() Stamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *LamportClock) snapshot() Stamp {
	return Stamp{
		NodeID:   l.nodeID,
		Logical:  l.logical,
		Physical: l.physical,
		NodeHash: l.nodeHash,
	}
}

// Compare yields a total order (Lamport clocks never report Concurrent):
// lower logical time is Before; on a tie, lower node hash is Before.
func (l *LamportClock) Compare(other Stamp) Ordering {
	mine := l.Now()
	switch {
	case mine.Logical < other.Logical:
		return Before
	case mine.Logical > other.Logical:
		return After
	case mine.NodeHash < other.NodeHash:
		return Before
	case mine.NodeHash > other.NodeHash:
		return After
	default:
		return Equal
	}
}

func (l *LamportClock) TotalOrderKey() (int64, time.Time, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(l.logical), l.physical, l.nodeID.String()
}
