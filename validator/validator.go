// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator is the registry backing both the consensus manager's
// required_participants/voting_power lookups and the API's validator admin
// surface (spec section 6), grounded on
// _examples/luxfi-consensus/validators's map-of-maps-keyed-by-node-id
// manager shape.
package validator

import (
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/synchronizer/errs"
)

// Status is a validator's admin-controlled membership state.
type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusJailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusJailed:
		return "jailed"
	default:
		return "unknown"
	}
}

// Info is a single validator's registered identity and state.
type Info struct {
	NodeID      ids.NodeID
	PublicKey   []byte
	VotingPower uint64
	Status      Status
	JailedUntil time.Time
}

// Registry tracks validator identity, voting power, and status. It is
// consulted by consensus (required_participants, voting power, jail
// exclusion) and exposed read-only to the API's admin surface.
type Registry struct {
	mu         sync.RWMutex
	validators map[ids.NodeID]*Info
}

// NewRegistry creates an empty validator registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[ids.NodeID]*Info)}
}

const component = "validator.Registry"

// Register adds or replaces a validator's identity and voting power.
func (r *Registry) Register(nodeID ids.NodeID, publicKey []byte, votingPower uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[nodeID] = &Info{
		NodeID:      nodeID,
		PublicKey:   publicKey,
		VotingPower: votingPower,
		Status:      StatusActive,
	}
}

// Deregister removes a validator entirely.
func (r *Registry) Deregister(nodeID ids.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.validators, nodeID)
}

// SetStatus transitions a validator's admin status.
func (r *Registry) SetStatus(nodeID ids.NodeID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.validators[nodeID]
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown validator")
	}
	info.Status = status
	return nil
}

// Jail marks a validator Jailed until the given instant (spec section 4.E
// "Jailing"). The caller (consensus.Manager) decides duration; the
// registry only holds the state.
func (r *Registry) Jail(nodeID ids.NodeID, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.validators[nodeID]
	if !ok {
		return errs.New(errs.KindNotFound, component, "unknown validator")
	}
	info.Status = StatusJailed
	info.JailedUntil = until
	return nil
}

// ReleaseExpiredJails transitions any validator whose jail window has
// elapsed back to Active. Call periodically; it performs no I/O.
func (r *Registry) ReleaseExpiredJails(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range r.validators {
		if info.Status == StatusJailed && !info.JailedUntil.After(now) {
			info.Status = StatusActive
			info.JailedUntil = time.Time{}
		}
	}
}

// Get returns a copy of a validator's info.
func (r *Registry) Get(nodeID ids.NodeID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.validators[nodeID]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// List returns a snapshot of every registered validator.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.validators))
	for _, info := range r.validators {
		out = append(out, *info)
	}
	return out
}

// ActiveSet returns the node IDs currently eligible to participate in
// consensus: Active status only. Jailed validators are excluded for the
// duration of their jail window (spec section 8 invariant 7).
func (r *Registry) ActiveSet() []ids.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ids.NodeID, 0, len(r.validators))
	for id, info := range r.validators {
		if info.Status == StatusActive {
			out = append(out, id)
		}
	}
	return out
}

// VotingPower returns a validator's registered weight, or 0 if unknown.
func (r *Registry) VotingPower(nodeID ids.NodeID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.validators[nodeID]; ok {
		return info.VotingPower
	}
	return 0
}
