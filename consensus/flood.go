// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/synchronizer/types"
)

// FloodControlConfig mirrors spec section 6's network limits.
type FloodControlConfig struct {
	GossipRatePerPeer rate.Limit
	VoteRatePerPeer   rate.Limit
	BurstCapacity     int
	EnableAutoBan     bool
	TempBanDuration   time.Duration
	BanList           map[types.ParticipantId]struct{}
}

// peerLimiters is one gossip limiter and one vote limiter per peer, created
// lazily on first contact (spec section 4.E "Flood control": two
// independently configured limiters per peer).
type peerLimiters struct {
	gossip *rate.Limiter
	vote   *rate.Limiter
}

// FloodControl enforces per-peer token-bucket limits on gossip and votes,
// with an optional temporary ban list consulted before the limiter runs.
type FloodControl struct {
	cfg FloodControlConfig

	mu          sync.Mutex
	peers       map[types.ParticipantId]*peerLimiters
	bannedUntil map[types.ParticipantId]time.Time
}

func NewFloodControl(cfg FloodControlConfig) *FloodControl {
	if cfg.BurstCapacity <= 0 {
		cfg.BurstCapacity = 1
	}
	if cfg.BanList == nil {
		cfg.BanList = make(map[types.ParticipantId]struct{})
	}
	return &FloodControl{
		cfg:         cfg,
		peers:       make(map[types.ParticipantId]*peerLimiters),
		bannedUntil: make(map[types.ParticipantId]time.Time),
	}
}

func (f *FloodControl) limitersFor(peer types.ParticipantId) *peerLimiters {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.peers[peer]
	if !ok {
		l = &peerLimiters{
			gossip: rate.NewLimiter(f.cfg.GossipRatePerPeer, f.cfg.BurstCapacity),
			vote:   rate.NewLimiter(f.cfg.VoteRatePerPeer, f.cfg.BurstCapacity),
		}
		f.peers[peer] = l
	}
	return l
}

// banned reports whether peer is currently serving a temporary or
// permanent ban.
func (f *FloodControl) banned(peer types.ParticipantId, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, permanent := f.cfg.BanList[peer]; permanent {
		return true
	}
	until, ok := f.bannedUntil[peer]
	return ok && now.Before(until)
}

func (f *FloodControl) ban(peer types.ParticipantId, now time.Time) {
	if !f.cfg.EnableAutoBan {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bannedUntil[peer] = now.Add(f.cfg.TempBanDuration)
}

// AllowGossip reports whether peer may send another gossip message now,
// auto-banning on violation if configured.
func (f *FloodControl) AllowGossip(peer types.ParticipantId) bool {
	now := time.Now()
	if f.banned(peer, now) {
		return false
	}
	if !f.limitersFor(peer).gossip.Allow() {
		f.ban(peer, now)
		return false
	}
	return true
}

// AllowVote reports whether peer may submit another vote now, auto-banning
// on violation if configured.
func (f *FloodControl) AllowVote(peer types.ParticipantId) bool {
	now := time.Now()
	if f.banned(peer, now) {
		return false
	}
	if !f.limitersFor(peer).vote.Allow() {
		f.ban(peer, now)
		return false
	}
	return true
}
