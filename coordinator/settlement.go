// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package coordinator

import (
	"context"

	"github.com/luxfi/synchronizer/types"
)

// SettlementMode selects when a finalized transaction's per-domain effects
// are applied (spec section 4.F "Settlement modes").
type SettlementMode int

const (
	SettlementImmediate SettlementMode = iota
	SettlementBatched
	SettlementScheduled
	SettlementOnDemand
)

// SettlementEngine is the injected capability that applies a transaction's
// effect to a single target domain. A real chain-specific bridge connector
// is explicitly out of scope; this is the seam where one would plug in
// (spec section 9 capability-set guidance).
type SettlementEngine interface {
	Settle(ctx context.Context, domain types.DomainId, tx types.CrossDomainTransaction) error
	// Rollback compensates a domain that already committed, used only in
	// Atomic mode when a later domain reports failure.
	Rollback(ctx context.Context, domain types.DomainId, tx types.CrossDomainTransaction) error
}

// BatchSettlementConfig controls the Batched mode trigger: seal and settle
// once a domain accumulates BatchSize pending transactions or BatchTimeout
// elapses since the oldest one arrived, whichever comes first.
type BatchSettlementConfig struct {
	BatchSize    int
	BatchTimeout int64 // milliseconds
	Atomic       bool
}

// settleDomains applies engine.Settle to every domain in order, and in
// Atomic mode compensates every already-committed domain with
// engine.Rollback the moment any domain fails (spec section 4.F "Atomic
// mode rolls back all per-domain commits if any target reports failure").
// It returns the domains it successfully committed (before any rollback)
// and the first error encountered, if any.
func settleDomains(ctx context.Context, engine SettlementEngine, tx types.CrossDomainTransaction, domains []types.DomainId, atomic bool) ([]types.DomainId, types.DomainId, error) {
	committed := make([]types.DomainId, 0, len(domains))
	for _, domain := range domains {
		if err := engine.Settle(ctx, domain, tx); err != nil {
			if atomic {
				for _, done := range committed {
					_ = engine.Rollback(ctx, done, tx)
				}
				return nil, domain, err
			}
			return committed, domain, err
		}
		committed = append(committed, domain)
	}
	return committed, "", nil
}
