// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mediator

import (
	"fmt"
	"time"

	"github.com/luxfi/synchronizer/types"
)

// TerminalStateView answers whether a transaction has reached a terminal
// status, satisfying a DependsOn condition without the mediator importing
// the coordinator package (SPEC_FULL.md section 4.D).
type TerminalStateView func(id types.TransactionId) (status types.TransactionStatus, terminal bool)

// ConditionEvaluator evaluates a single attached Condition against the
// transaction it was attached to, the current time, and the coordinator's
// terminal-state view. It is injected so alternate schemes can be
// substituted without touching the session state machine (spec section 9,
// capability-set dynamic dispatch).
type ConditionEvaluator interface {
	Evaluate(cond types.Condition, tx *types.CrossDomainTransaction, now time.Time, terminal TerminalStateView) (bool, error)
}

// DefaultConditionEvaluator implements the four condition kinds named in
// spec section 4.D. Custom predicates default-allow when unregistered.
type DefaultConditionEvaluator struct {
	// CustomPredicates backs ConditionCustom. A missing key default-allows.
	CustomPredicates map[string]func(value string) (bool, error)
}

// metadataAmountKey is the CrossDomainTransaction.Metadata key MaxAmount
// conditions compare against; transactions that omit it fail closed.
const metadataAmountKey = "amount"

func (e DefaultConditionEvaluator) Evaluate(cond types.Condition, tx *types.CrossDomainTransaction, now time.Time, terminal TerminalStateView) (bool, error) {
	switch cond.Type {
	case types.ConditionTimeWindow:
		return !now.Before(cond.Start) && !now.After(cond.End), nil

	case types.ConditionMaxAmount:
		raw, ok := tx.Metadata[metadataAmountKey]
		if !ok {
			return false, nil
		}
		var declared uint64
		if _, err := fmt.Sscanf(raw, "%d", &declared); err != nil {
			return false, nil
		}
		return declared <= cond.Amount, nil

	case types.ConditionDependsOn:
		status, ok := terminal(cond.DependsOnTx)
		if !ok {
			return false, nil
		}
		return status == types.StatusFinalized, nil

	case types.ConditionCustom:
		pred, ok := e.CustomPredicates[cond.Key]
		if !ok {
			return true, nil
		}
		return pred(cond.Value)

	default:
		return false, nil
	}
}
