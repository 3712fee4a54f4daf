// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sequencer implements the priority-aware, batched ordering of
// opaque ciphertexts described in spec section 4.C, grounded on
// original_source/sync-domain/src/sequencer.rs.
package sequencer

import (
	"time"

	"github.com/luxfi/synchronizer/types"
)

// PriorityCalculator assigns a 0-255 priority to a PendingTransaction. It
// is injected at construction (spec section 9's capability-set idiom)
// rather than fixed, so a domain can swap in its own scheduling policy.
type PriorityCalculator interface {
	CalculatePriority(tx *types.PendingTransaction, now time.Time) uint8
}

// DefaultPriorityCalculator implements the exact point schedule of spec
// section 4.C / original_source/sequencer.rs: declared priority, plus
// saturating boosts for imminent expiry, small size, and transaction type.
type DefaultPriorityCalculator struct{}

func (DefaultPriorityCalculator) CalculatePriority(tx *types.PendingTransaction, now time.Time) uint8 {
	priority := tx.Metadata.DeclaredPriority

	if exp := tx.Metadata.ExpiresAt; exp != nil {
		untilExpiry := exp.Sub(now)
		switch {
		case untilExpiry < 5*time.Minute:
			priority = satAdd(priority, 50)
		case untilExpiry < 15*time.Minute:
			priority = satAdd(priority, 20)
		}
	}

	if tx.Metadata.SizeBytes < 1024 {
		priority = satAdd(priority, 10)
	}

	switch tx.Metadata.TransactionType {
	case "AssetTransfer", "TransferAsset":
		priority = satAdd(priority, 30)
	case "CreateContract":
		priority = satAdd(priority, 20)
	case "ExerciseContract":
		priority = satAdd(priority, 25)
	}

	return priority
}

// satAdd adds two uint8s, clamping at 255 instead of wrapping.
func satAdd(a uint8, b int) uint8 {
	sum := int(a) + b
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}
