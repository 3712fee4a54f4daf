// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// NodeStatus is the liveness state of a peer, as observed through its
// clock updates (spec section 4.A, supplemented field naming per
// SPEC_FULL.md section 3 from original_source's NodeStatus).
type NodeStatus int

const (
	NodeActive NodeStatus = iota
	NodeInactive
	NodeSuspected
	NodeFailed
)

// NodeInfo is the Manager's last-observed view of a peer.
type NodeInfo struct {
	NodeID       ids.NodeID
	LastObserved time.Time
	LastStamp    Stamp
	Status       NodeStatus
}

// Manager owns one Clock for the local node and a liveness table for
// peers, promoting entries to Suspected after suspectTimeout and Failed
// after failTimeout without a fresher observation. Clock failures are
// never fatal; this table is advisory only (spec section 4.A).
type Manager struct {
	mu              sync.RWMutex
	local           Clock
	peers           map[ids.NodeID]*NodeInfo
	suspectTimeout  time.Duration
	failTimeout     time.Duration
	log             log.Logger
}

// NewManager constructs a Manager around an already-created local Clock.
func NewManager(local Clock, suspectTimeout, failTimeout time.Duration, logger log.Logger) *Manager {
	return &Manager{
		local:          local,
		peers:          make(map[ids.NodeID]*NodeInfo),
		suspectTimeout: suspectTimeout,
		failTimeout:    failTimeout,
		log:            logger,
	}
}

// Local returns the manager's own clock for advancing and tagging events.
func (m *Manager) Local() Clock {
	return m.local
}

// Observe records a stamp received from a peer, resetting it to Active.
func (m *Manager) Observe(peer ids.NodeID, stamp Stamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	info, ok := m.peers[peer]
	if !ok {
		info = &NodeInfo{NodeID: peer}
		m.peers[peer] = info
	}
	info.LastObserved = now
	info.LastStamp = stamp.Clone()
	if info.Status != NodeActive {
		m.log.Info("peer recovered", zap.Stringer("node", peer))
	}
	info.Status = NodeActive
}

// Sweep promotes peers that have not been observed within suspectTimeout to
// Suspected, and within failTimeout to Failed. Call this periodically from
// a background loop; it performs no I/O and never returns an error.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, info := range m.peers {
		age := now.Sub(info.LastObserved)
		switch {
		case age >= m.failTimeout && info.Status != NodeFailed:
			info.Status = NodeFailed
			m.log.Warn("peer marked failed", zap.Stringer("node", info.NodeID))
		case age >= m.suspectTimeout && info.Status == NodeActive:
			info.Status = NodeSuspected
			m.log.Warn("peer marked suspected", zap.Stringer("node", info.NodeID))
		}
	}
}

// Status returns the last-known status of a peer, defaulting to Inactive
// for a node never observed.
func (m *Manager) Status(peer ids.NodeID) NodeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.peers[peer]; ok {
		return info.Status
	}
	return NodeInactive
}

// Peers returns a snapshot of every known peer's liveness info.
func (m *Manager) Peers() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeInfo, 0, len(m.peers))
	for _, info := range m.peers {
		out = append(out, *info)
	}
	return out
}

// SortByClock orders stamps by causal order (Compare), breaking Concurrent
// ties with TotalOrderKey, per spec section 4.A's event-ordering rule. The
// less function compares stamps against each other directly (it does not
// consult m.local), so this helper needs no Manager state beyond the
// vector-comparison semantics it shares with the owned Clock's variant.
func SortByClock(stamps []Stamp, compare func(a, b Stamp) Ordering) {
	less := func(i, j int) bool {
		switch compare(stamps[i], stamps[j]) {
		case Before:
			return true
		case After:
			return false
		default:
			si, ti, ni := totalOrderKeyOf(stamps[i])
			sj, tj, nj := totalOrderKeyOf(stamps[j])
			if si != sj {
				return si < sj
			}
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return ni < nj
		}
	}
	insertionSort(stamps, less)
}

func totalOrderKeyOf(s Stamp) (int64, time.Time, string) {
	var sum int64
	for _, v := range s.Vector {
		sum += int64(v)
	}
	if sum == 0 {
		sum = int64(s.Logical)
	}
	return sum, s.Physical, s.NodeID.String()
}

// insertionSort avoids pulling in sort.Slice's reflection-based closure
// indirection for what is, in practice, ordering small batches of events.
func insertionSort(stamps []Stamp, less func(i, j int) bool) {
	for i := 1; i < len(stamps); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			stamps[j], stamps[j-1] = stamps[j-1], stamps[j]
		}
	}
}
