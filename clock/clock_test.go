// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/synchronizer/internal/logtest"
	"github.com/stretchr/testify/require"
)

func TestVectorClockTickIncrementsOwnCounter(t *testing.T) {
	node := ids.GenerateTestNodeID()
	vc := NewVectorClock(node)
	s1 := vc.Tick()
	s2 := vc.Tick()
	require.Equal(t, uint64(1), s1.Vector[node])
	require.Equal(t, uint64(2), s2.Vector[node])
}

func TestVectorClockCompareExhaustive(t *testing.T) {
	// spec section 8 invariant 5: exactly one of Before/After/Equal/Concurrent
	// holds for any pair, Before is transitive and antisymmetric.
	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()

	va := NewVectorClock(a, b)
	vb := NewVectorClock(b, a)

	sa := va.Tick() // a=1,b=0
	require.Equal(t, Before, CompareVectors(map[ids.NodeID]uint64{a: 0}, sa.Vector))
	require.Equal(t, After, CompareVectors(sa.Vector, map[ids.NodeID]uint64{a: 0}))
	require.Equal(t, Equal, CompareVectors(sa.Vector, sa.Vector))

	sb := vb.Tick() // b=1,a=0
	require.Equal(t, Concurrent, CompareVectors(sa.Vector, sb.Vector))
}

func TestVectorClockUpdateMergesByMax(t *testing.T) {
	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	va := NewVectorClock(a, b)
	vb := NewVectorClock(b, a)

	vb.Tick()
	vb.Tick()
	sb := vb.Tick() // b=3

	merged := va.Update(sb)
	require.Equal(t, uint64(3), merged.Vector[b])
	require.Equal(t, uint64(1), merged.Vector[a]) // own tick on update
}

func TestLamportTotalOrder(t *testing.T) {
	n1 := ids.GenerateTestNodeID()
	n2 := ids.GenerateTestNodeID()
	l1 := NewLamportClock(n1)
	l2 := NewLamportClock(n2)

	s1 := l1.Tick()
	merged := l2.Update(s1)
	require.Greater(t, merged.Logical, s1.Logical)
	require.Equal(t, After, l2.Compare(s1))
}

func TestHLCIncrementsLogicalWithoutPhysicalAdvance(t *testing.T) {
	node := ids.GenerateTestNodeID()
	h := NewHybridLogicalClock(node)
	fixed := h.physical
	h.nowFn = func() time.Time { return fixed }
	_ = h.Tick() // no physical advance -> logical increments
	s := h.Tick()
	require.Equal(t, uint64(2), s.Logical)
}

func TestNodeLivenessSweep(t *testing.T) {
	node := ids.GenerateTestNodeID()
	local := NewVectorClock(ids.GenerateTestNodeID())
	m := NewManager(local, 10*time.Millisecond, 20*time.Millisecond, logtest.Nop{})
	m.Observe(node, Stamp{NodeID: node})
	require.Equal(t, NodeActive, m.Status(node))

	time.Sleep(15 * time.Millisecond)
	m.Sweep()
	require.Equal(t, NodeSuspected, m.Status(node))

	time.Sleep(15 * time.Millisecond)
	m.Sweep()
	require.Equal(t, NodeFailed, m.Status(node))
}
