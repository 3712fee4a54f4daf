// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/coordinator"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestBuilderProductionPreset(t *testing.T) {
	cfg, err := NewBuilder().FromPreset(PresetProduction).Build()
	require.NoError(t, err)
	require.Equal(t, coordinator.SettlementBatched, cfg.Coordinator.SettlementMode)
	require.True(t, cfg.FloodControl.EnableAutoBan)
}

func TestBuilderRejectsInvalidQuorumRatio(t *testing.T) {
	_, err := NewBuilder().WithQuorumRatio(0).Build()
	require.Error(t, err)

	_, err = NewBuilder().WithQuorumRatio(1001).Build()
	require.Error(t, err)
}

func TestBuilderRejectsUnknownPreset(t *testing.T) {
	_, err := NewBuilder().FromPreset(Preset("nonexistent")).Build()
	require.Error(t, err)
}

func TestBuilderRejectsBadClockTimeouts(t *testing.T) {
	_, err := NewBuilder().WithClockTimeouts(10*time.Second, 5*time.Second).Build()
	require.Error(t, err)
}

func TestValidateCatchesEachRecognizedOption(t *testing.T) {
	base := Default()

	bad := base
	bad.Consensus.QuorumRatioThousandths = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Sequencer.TransactionBatchSize = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Mediator.MaxConcurrentSessions = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Coordinator.Retry.BackoffMultiplier = 0.5
	require.Error(t, bad.Validate())

	bad = base
	bad.FloodControl.BurstCapacity = 0
	require.Error(t, bad.Validate())
}

func TestWithRetryRejectsZeroAttempts(t *testing.T) {
	_, err := NewBuilder().WithRetry(coordinator.RetryConfig{MaxAttempts: 0}).Build()
	require.Error(t, err)
}
