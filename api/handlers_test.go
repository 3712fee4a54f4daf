// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/coordinator"
	"github.com/luxfi/synchronizer/internal/logtest"
	"github.com/luxfi/synchronizer/mediator"
	"github.com/luxfi/synchronizer/orchestrator"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
	"github.com/luxfi/synchronizer/validator"
)

type noopEngine struct{}

func (noopEngine) Settle(context.Context, types.DomainId, types.CrossDomainTransaction) error {
	return nil
}
func (noopEngine) Rollback(context.Context, types.DomainId, types.CrossDomainTransaction) error {
	return nil
}

func buildTestHandlers(t *testing.T) (Handlers, *orchestrator.Orchestrator) {
	t.Helper()
	st := store.NewMemory()
	nodeID := ids.GenerateTestNodeID()
	registry := validator.NewRegistry()
	registry.Register(nodeID, []byte("pub"), 1)

	keys := func(types.ParticipantId) ([]byte, bool) { return []byte("pub"), true }
	weight := func(types.ParticipantId) uint64 { return 1 }
	active := func() []types.ParticipantId { return nil }

	consensusMgr := consensus.New(consensus.Config{
		QuorumRatioThousandths: 1000,
		ConsensusTimeout:       time.Minute,
	}, st, logtest.Nop{}, keys, weight, active, nil, nil, nil)

	coord := coordinator.New(coordinator.Config{
		SettlementMode:            coordinator.SettlementImmediate,
		MaxConcurrentTransactions: 4,
	}, st, logtest.Nop{}, noopEngine{}, nil)

	terminal := func(types.TransactionId) (types.TransactionStatus, bool) { return 0, false }
	med := mediator.New(mediator.Config{}, st, logtest.Nop{}, mediator.DefaultConditionEvaluator{}, keys, terminal, nil, nil, "domain-a")

	orc := orchestrator.New(orchestrator.Config{}, st, logtest.Nop{}, registry, coord, consensusMgr, med, nil, nil, nil, nil, nil)
	return NewHandlers(orc, st, registry, consensusMgr), orc
}

func TestSubmitTransactionRejectsEmptyTargets(t *testing.T) {
	h, _ := buildTestHandlers(t)
	_, rejected, err := h.SubmitTransaction(context.Background(), SubmitTransactionRequest{
		SourceDomain:          "domain-a",
		RequiredConfirmations: 1,
		TimeoutAt:             time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, rejected)
}

func TestSubmitTransactionAccepts(t *testing.T) {
	h, _ := buildTestHandlers(t)
	resp, rejected, err := h.SubmitTransaction(context.Background(), SubmitTransactionRequest{
		SourceDomain:          "domain-a",
		TargetDomains:         []types.DomainId{"domain-b"},
		RequiredConfirmations: 1,
		TimeoutAt:             time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.Nil(t, rejected)
	require.Equal(t, "Accepted", resp.Status)

	status, ok := h.TransactionStatus(context.Background(), resp.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.StatusReceived, status.Status)
}

func TestSubmitSignedTransactionRejectsBadSignature(t *testing.T) {
	h, _ := buildTestHandlers(t)
	_, _, err := h.SubmitSignedTransaction(context.Background(), SubmitSignedTransactionRequest{
		SubmitTransactionRequest: SubmitTransactionRequest{
			SourceDomain:          "domain-a",
			TargetDomains:         []types.DomainId{"domain-b"},
			RequiredConfirmations: 1,
			TimeoutAt:             time.Now().Add(time.Minute),
		},
		PublicKey: []byte("not a real key"),
		Signature: []byte("not a real signature"),
	})
	require.Error(t, err)
}

func TestListAndAddValidator(t *testing.T) {
	h, _ := buildTestHandlers(t)
	require.Len(t, h.ListValidators(), 1)

	nodeID := ids.GenerateTestNodeID()
	require.NoError(t, h.AddValidator(AddValidatorRequest{NodeID: nodeID.String(), PublicKey: []byte("pub"), VotingPower: 2}))
	require.Len(t, h.ListValidators(), 2)

	require.NoError(t, h.UpdateValidatorStatus(UpdateValidatorStatusRequest{NodeID: nodeID.String(), Status: "inactive"}))
	require.NoError(t, h.RemoveValidator(nodeID.String()))
	require.Len(t, h.ListValidators(), 1)
}

func TestMempoolReflectsSubmission(t *testing.T) {
	h, _ := buildTestHandlers(t)
	_, _, err := h.SubmitTransaction(context.Background(), SubmitTransactionRequest{
		SourceDomain:          "domain-a",
		TargetDomains:         []types.DomainId{"domain-b"},
		RequiredConfirmations: 1,
		TimeoutAt:             time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, h.Mempool(context.Background()).TransactionIds, 1)
}

func TestConsensusStatusReflectsManagerMetrics(t *testing.T) {
	h, _ := buildTestHandlers(t)
	status := h.ConsensusStatus()
	require.Equal(t, uint64(0), status.TotalProposals)
}

func TestLatestBlockNotFoundWhenEmpty(t *testing.T) {
	h, _ := buildTestHandlers(t)
	_, ok, err := h.LatestBlock(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
