// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/clock"
	"github.com/luxfi/synchronizer/consensus"
	"github.com/luxfi/synchronizer/coordinator"
	"github.com/luxfi/synchronizer/internal/logtest"
	"github.com/luxfi/synchronizer/mediator"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/transport"
	"github.com/luxfi/synchronizer/types"
	"github.com/luxfi/synchronizer/validator"
)

// fakeSettlementEngine is a minimal settlement engine test double: every
// domain always succeeds and every call is recorded.
type fakeSettlementEngine struct {
	mu      sync.Mutex
	settled []types.DomainId
}

func (f *fakeSettlementEngine) Settle(_ context.Context, domain types.DomainId, _ types.CrossDomainTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, domain)
	return nil
}

func (f *fakeSettlementEngine) Rollback(_ context.Context, domain types.DomainId, _ types.CrossDomainTransaction) error {
	return nil
}

func buildTestOrchestrator(t *testing.T) (*Orchestrator, *consensus.Manager, ids.NodeID, *bls.SecretKey) {
	t.Helper()
	st := store.NewMemory()

	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	pub := bls.PublicKeyToBytes(sk.PublicKey())

	nodeID := ids.GenerateTestNodeID()
	participant := types.ParticipantId(nodeID.String())

	registry := validator.NewRegistry()
	registry.Register(nodeID, pub, 1)

	keys := func(p types.ParticipantId) ([]byte, bool) {
		if p == participant {
			return pub, true
		}
		return nil, false
	}
	weight := func(types.ParticipantId) uint64 { return 1 }
	active := func() []types.ParticipantId { return []types.ParticipantId{participant} }

	consensusMgr := consensus.New(consensus.Config{
		QuorumRatioThousandths: 1000,
		ConsensusTimeout:       time.Minute,
	}, st, logtest.Nop{}, keys, weight, active, nil, nil, nil)

	engine := &fakeSettlementEngine{}
	coord := coordinator.New(coordinator.Config{
		SettlementMode:            coordinator.SettlementImmediate,
		MaxConcurrentTransactions: 4,
	}, st, logtest.Nop{}, engine, nil)

	terminal := func(types.TransactionId) (types.TransactionStatus, bool) { return 0, false }
	med := mediator.New(mediator.Config{}, st, logtest.Nop{}, mediator.DefaultConditionEvaluator{}, keys, terminal, nil, nil, "domain-a")

	o := New(Config{}, st, logtest.Nop{}, registry, coord, consensusMgr, med, nil, nil, nil, nil, nil)
	return o, consensusMgr, nodeID, sk
}

func TestOrchestratorConsumesVotesFromBus(t *testing.T) {
	st := store.NewMemory()

	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	pub := bls.PublicKeyToBytes(sk.PublicKey())

	nodeID := ids.GenerateTestNodeID()
	participant := types.ParticipantId(nodeID.String())

	registry := validator.NewRegistry()
	registry.Register(nodeID, pub, 1)

	keys := func(p types.ParticipantId) ([]byte, bool) {
		if p == participant {
			return pub, true
		}
		return nil, false
	}
	weight := func(types.ParticipantId) uint64 { return 1 }
	active := func() []types.ParticipantId { return []types.ParticipantId{participant} }

	consensusMgr := consensus.New(consensus.Config{
		QuorumRatioThousandths: 1000,
		ConsensusTimeout:       time.Minute,
	}, st, logtest.Nop{}, keys, weight, active, nil, nil, nil)

	engine := &fakeSettlementEngine{}
	coord := coordinator.New(coordinator.Config{
		SettlementMode:            coordinator.SettlementImmediate,
		MaxConcurrentTransactions: 4,
	}, st, logtest.Nop{}, engine, nil)

	terminal := func(types.TransactionId) (types.TransactionStatus, bool) { return 0, false }
	med := mediator.New(mediator.Config{}, st, logtest.Nop{}, mediator.DefaultConditionEvaluator{}, keys, terminal, nil, nil, "domain-a")

	bus := transport.NewMemory(16)
	localClock := clock.NewHybridLogicalClock(ids.GenerateTestNodeID())

	o := New(Config{}, st, logtest.Nop{}, registry, coord, consensusMgr, med, nil, bus, localClock, nil, nil)

	txSubs, unsubTx := bus.Subscribe(transport.TopicTransactions)
	defer unsubTx()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	now := time.Now()
	tx := types.CrossDomainTransaction{
		SourceDomain:          "domain-a",
		TargetDomains:         []types.DomainId{"domain-b"},
		TransactionType:       types.AssetTransfer,
		Data:                  []byte{0x01},
		RequiredConfirmations: 1,
		CreatedAt:             now,
		TimeoutAt:             now.Add(time.Minute),
	}
	txID, err := o.SubmitTransaction(ctx, tx)
	require.NoError(t, err)

	select {
	case msg := <-txSubs:
		p, ok := msg.Payload.(transport.TransactionSubmittedPayload)
		require.True(t, ok)
		require.Equal(t, txID, p.TransactionId)
	case <-time.After(time.Second):
		t.Fatal("expected the orchestrator to publish a TransactionSubmitted message on the bus")
	}

	msg := consensus.VoteMessage(txID, participant, true)
	sig, err := sk.Sign(msg)
	require.NoError(t, err)
	vote := types.ConsensusVote{
		Voter:     participant,
		Vote:      true,
		View:      0,
		Signature: bls.SignatureToBytes(sig),
		Timestamp: time.Now(),
	}
	require.NoError(t, bus.Publish(transport.TopicConsensus, transport.Message{
		Kind:    transport.KindConsensusVote,
		Topic:   transport.TopicConsensus,
		Payload: transport.ConsensusVotePayload{TransactionId: txID, Vote: vote},
	}))

	require.Eventually(t, func() bool {
		status, ok := o.TransactionStatus(txID)
		return ok && status == types.StatusFinalized
	}, time.Second, time.Millisecond)
}

func TestOrchestratorSingleTargetHappyPath(t *testing.T) {
	o, _, nodeID, sk := buildTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, o.Start(ctx))
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	now := time.Now()
	tx := types.CrossDomainTransaction{
		SourceDomain:          "domain-a",
		TargetDomains:         []types.DomainId{"domain-b"},
		TransactionType:       types.AssetTransfer,
		Data:                  []byte{0x01},
		RequiredConfirmations: 1,
		CreatedAt:             now,
		TimeoutAt:             now.Add(time.Minute),
	}

	txID, err := o.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	require.NotEqual(t, types.TransactionId{}, txID)

	require.Eventually(t, func() bool {
		status, ok := o.TransactionStatus(txID)
		return ok && status == types.StatusConsensusInProgress
	}, time.Second, time.Millisecond)

	participant := types.ParticipantId(nodeID.String())
	msg := consensus.VoteMessage(txID, participant, true)
	sig, err := sk.Sign(msg)
	require.NoError(t, err)
	vote := types.ConsensusVote{
		Voter:     participant,
		Vote:      true,
		View:      0,
		Signature: bls.SignatureToBytes(sig),
		Timestamp: time.Now(),
	}
	require.NoError(t, o.HandleConsensusVote(ctx, txID, vote))

	require.Eventually(t, func() bool {
		status, ok := o.TransactionStatus(txID)
		return ok && status == types.StatusFinalized
	}, time.Second, time.Millisecond)

	rec, ok := o.coordinator.Get(txID)
	require.True(t, ok)
	require.Equal(t, types.SettlementCompleted, rec.SettlementStatus)
	require.Empty(t, o.Mempool())
}

func TestOrchestratorRepeatedSubmissionIsNoOp(t *testing.T) {
	o, _, _, _ := buildTestOrchestrator(t)
	ctx := context.Background()

	now := time.Now()
	tx := types.CrossDomainTransaction{
		TransactionId:         types.NewTransactionId(),
		SourceDomain:          "domain-a",
		TargetDomains:         []types.DomainId{"domain-b"},
		RequiredConfirmations: 1,
		CreatedAt:             now,
		TimeoutAt:             now.Add(time.Minute),
	}

	first, err := o.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	second, err := o.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, o.Mempool(), 1)
}

func TestOrchestratorBlockFinalizationTagsTransactions(t *testing.T) {
	o, _, _, _ := buildTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	txID := types.NewTransactionId()
	block := types.Block{
		Height:       1,
		Timestamp:    time.Now(),
		Transactions: []types.TransactionId{txID},
	}
	o.proposeBlock(block, o.hashFn)
	hash := DefaultHashFn(block)

	registeredNode := o.validators.ActiveSet()[0]
	require.NoError(t, o.voteBlock(hash, registeredNode, true, []byte("sig")))
	o.blockProcessorTick()

	require.Eventually(t, func() bool {
		_, _, found, err := o.store.GetBlockByHeight(ctx, 1)
		return err == nil && found
	}, 3*time.Second, 10*time.Millisecond)

	tag, ok, err := o.store.GetTxBlockTag(ctx, txID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), tag.Height)

	cert, ok, err := o.store.GetFinalityCertificate(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, cert.Hash)
	require.Len(t, cert.Signatures, 1)
}
