// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/ids"

	"github.com/luxfi/synchronizer/types"
	"github.com/luxfi/synchronizer/validator"
)

func TestResolveNodeIDGeneratesWhenEmpty(t *testing.T) {
	nodeID, err := resolveNodeID("")
	require.NoError(t, err)
	require.NotEqual(t, ids.NodeID{}, nodeID)
}

func TestResolveNodeIDParsesGivenValue(t *testing.T) {
	want := ids.GenerateTestNodeID()
	got, err := resolveNodeID(want.String())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	st, closeFn, err := openStore("")
	require.NoError(t, err)
	defer closeFn()

	_, ok, err := st.LatestHeight(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryLookupsRoundTripThroughParticipantId(t *testing.T) {
	registry := validator.NewRegistry()
	nodeID := ids.GenerateTestNodeID()
	registry.Register(nodeID, []byte("pub"), 7)

	keys, weight, active := registryLookups(registry)

	pub, ok := keys(types.ParticipantId(nodeID.String()))
	require.True(t, ok)
	require.Equal(t, []byte("pub"), pub)
	require.Equal(t, uint64(7), weight(types.ParticipantId(nodeID.String())))
	require.Contains(t, active(), types.ParticipantId(nodeID.String()))

	_, ok = keys(types.ParticipantId("not-a-node-id"))
	require.False(t, ok)
}

func TestRegistryJailerJailsByParticipantId(t *testing.T) {
	registry := validator.NewRegistry()
	nodeID := ids.GenerateTestNodeID()
	registry.Register(nodeID, []byte("pub"), 1)

	jailer := registryJailer{registry: registry}
	until := time.Now().Add(time.Hour).Unix()
	require.NoError(t, jailer.Jail(types.ParticipantId(nodeID.String()), until))

	info, ok := registry.Get(nodeID)
	require.True(t, ok)
	require.Equal(t, validator.StatusJailed, info.Status)
}

func TestLoggingSettlementEngineAlwaysSucceeds(t *testing.T) {
	engine := &loggingSettlementEngine{log: newZapLogger(zap.NewNop())}
	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	require.NoError(t, engine.Settle(context.Background(), "domain-a", tx))
	require.NoError(t, engine.Rollback(context.Background(), "domain-a", tx))
}
