// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator tracks each cross-domain transaction's per-tx state
// machine, dependency graph, retry schedule, and settlement, outliving any
// single consensus or mediation session (spec section 4.F).
package coordinator

import (
	"github.com/luxfi/synchronizer/types"
)

// TerminalApproved reports whether id's current status is the one terminal
// state a dependency must reach before dependents may proceed (spec section
// 8 invariant 6: "no transaction reaches Finalized before all of its
// declared dependencies are Finalized").
type TerminalApproved func(id types.TransactionId) (ok bool, known bool)

// dependenciesSatisfied reports whether every entry in deps is known and
// Finalized.
func dependenciesSatisfied(deps []types.TransactionId, approved TerminalApproved) bool {
	for _, dep := range deps {
		ok, known := approved(dep)
		if !known || !ok {
			return false
		}
	}
	return true
}

// DetectCycle reports whether adding tx (with the given dependencies) to
// the set of already-known transactions would introduce a dependency
// cycle. known maps a transaction id to the dependency list it was
// submitted with; it does not need to include tx itself. Cycles are
// rejected at submission (spec section 4.F).
func DetectCycle(tx types.TransactionId, deps []types.TransactionId, known map[types.TransactionId][]types.TransactionId) bool {
	visited := make(map[types.TransactionId]bool)
	var visit func(id types.TransactionId) bool
	visit = func(id types.TransactionId) bool {
		if id == tx {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, next := range known[id] {
			if visit(next) {
				return true
			}
		}
		return false
	}
	for _, dep := range deps {
		if visit(dep) {
			return true
		}
	}
	return false
}
