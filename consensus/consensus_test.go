// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/internal/logtest"
	"github.com/luxfi/synchronizer/store"
	"github.com/luxfi/synchronizer/types"
)

type participantKey struct {
	sk *bls.SecretKey
	pk []byte
}

func newParticipantKey(t *testing.T) participantKey {
	t.Helper()
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	return participantKey{sk: sk, pk: bls.PublicKeyToBytes(sk.PublicKey())}
}

func signedVote(t *testing.T, key participantKey, txID types.TransactionId, voter types.ParticipantId, vote bool, view uint64) types.ConsensusVote {
	t.Helper()
	msg := VoteMessage(txID, voter, vote)
	sig, err := key.sk.Sign(msg)
	require.NoError(t, err)
	return types.ConsensusVote{
		Voter:     voter,
		Vote:      vote,
		View:      view,
		Signature: bls.SignatureToBytes(sig),
		Timestamp: time.Now(),
	}
}

func newTestManager(t *testing.T, cfg Config, keys map[types.ParticipantId]participantKey, weights map[types.ParticipantId]uint64) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemory()
	lookup := func(p types.ParticipantId) ([]byte, bool) {
		k, ok := keys[p]
		if !ok {
			return nil, false
		}
		return k.pk, true
	}
	weight := func(p types.ParticipantId) uint64 { return weights[p] }
	active := func() []types.ParticipantId {
		out := make([]types.ParticipantId, 0, len(keys))
		for p := range keys {
			out = append(out, p)
		}
		return out
	}
	m := New(cfg, st, logtest.Nop{}, lookup, weight, active, nil, nil, nil)
	return m, st
}

func TestConsensusCommitsOnQuorumWeight(t *testing.T) {
	alice := newParticipantKey(t)
	bob := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice, "bob": bob}
	weights := map[types.ParticipantId]uint64{"alice": 1, "bob": 1}
	m, _ := newTestManager(t, Config{QuorumRatioThousandths: 1000, ConsensusTimeout: time.Second}, keys, weights)

	txID := types.NewTransactionId()
	required := []types.ParticipantId{"alice", "bob"}
	require.NoError(t, m.StartConsensus(context.Background(), txID, required, "domain-a", nil))

	require.NoError(t, m.HandleVote(context.Background(), txID, signedVote(t, alice, txID, "alice", true, 0)))
	require.NoError(t, m.HandleVote(context.Background(), txID, signedVote(t, bob, txID, "bob", true, 0)))

	session, ok := m.Session(txID)
	require.True(t, ok)
	require.Equal(t, types.PhaseCommitted, session.Phase)
	require.Equal(t, types.ResultApproved, session.Result.Kind)
}

func TestConsensusTimeout(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	weights := map[types.ParticipantId]uint64{"alice": 1}
	m, _ := newTestManager(t, Config{QuorumRatioThousandths: 1000, ConsensusTimeout: 20 * time.Millisecond}, keys, weights)

	txID := types.NewTransactionId()
	require.NoError(t, m.StartConsensus(context.Background(), txID, []types.ParticipantId{"alice"}, "domain-a", nil))

	time.Sleep(40 * time.Millisecond)
	m.CheckTimeouts(context.Background())

	session, ok := m.Session(txID)
	require.True(t, ok)
	require.Equal(t, types.PhaseAborted, session.Phase)
	require.Equal(t, types.ResultTimeout, session.Result.Kind)
	require.Equal(t, uint64(1), m.Metrics().Failed)
}

func TestConsensusViewChangeResetsVotesAndAdvancesView(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	weights := map[types.ParticipantId]uint64{"alice": 1}
	m, _ := newTestManager(t, Config{
		QuorumRatioThousandths:  1000,
		ConsensusTimeout:        time.Hour,
		ViewChangeTimeout:       10 * time.Millisecond,
		MaxViewsWithoutProgress: 1,
	}, keys, weights)

	txID := types.NewTransactionId()
	require.NoError(t, m.StartConsensus(context.Background(), txID, []types.ParticipantId{"alice"}, "domain-a", nil))

	time.Sleep(25 * time.Millisecond)
	m.CheckViewChanges(context.Background())

	session, ok := m.Session(txID)
	require.True(t, ok)
	require.Equal(t, uint64(1), session.View)
	require.Empty(t, session.Votes)
	require.Equal(t, uint64(1), m.Metrics().ViewChanges)

	// a vote at the stale view is rejected
	err := m.HandleVote(context.Background(), txID, signedVote(t, alice, txID, "alice", true, 0))
	require.Error(t, err)

	// a vote at the new view commits
	require.NoError(t, m.HandleVote(context.Background(), txID, signedVote(t, alice, txID, "alice", true, 1)))
	session, ok = m.Session(txID)
	require.True(t, ok)
	require.Equal(t, types.PhaseCommitted, session.Phase)
}

func TestConsensusDoubleSignJails(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	weights := map[types.ParticipantId]uint64{"alice": 1}

	var jailed types.ParticipantId
	jailer := jailerFunc(func(p types.ParticipantId, until int64) error {
		jailed = p
		return nil
	})

	st := store.NewMemory()
	lookup := func(p types.ParticipantId) ([]byte, bool) {
		k, ok := keys[p]
		return k.pk, ok
	}
	weight := func(p types.ParticipantId) uint64 { return weights[p] }
	active := func() []types.ParticipantId { return []types.ParticipantId{"alice"} }
	m := New(Config{QuorumRatioThousandths: 1000, ConsensusTimeout: time.Hour, JailDurationSecs: 60}, st, logtest.Nop{}, lookup, weight, active, jailer, nil, nil)

	txID := types.NewTransactionId()
	require.NoError(t, m.StartConsensus(context.Background(), txID, []types.ParticipantId{"alice"}, "domain-a", nil))

	require.NoError(t, m.HandleVote(context.Background(), txID, signedVote(t, alice, txID, "alice", true, 0)))
	err := m.HandleVote(context.Background(), txID, signedVote(t, alice, txID, "alice", false, 0))
	require.Error(t, err)
	require.Equal(t, types.ParticipantId("alice"), jailed)
}

func TestConsensusVoteFromNonRequiredParticipantRejected(t *testing.T) {
	alice := newParticipantKey(t)
	mallory := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice, "mallory": mallory}
	weights := map[types.ParticipantId]uint64{"alice": 1, "mallory": 1}
	m, _ := newTestManager(t, Config{QuorumRatioThousandths: 1000, ConsensusTimeout: time.Hour}, keys, weights)

	txID := types.NewTransactionId()
	require.NoError(t, m.StartConsensus(context.Background(), txID, []types.ParticipantId{"alice"}, "domain-a", nil))

	err := m.HandleVote(context.Background(), txID, signedVote(t, mallory, txID, "mallory", true, 0))
	require.Error(t, err)
}

func TestRequiredQuorumCeiling(t *testing.T) {
	require.Equal(t, uint64(1), RequiredQuorum(1, 1000))
	require.Equal(t, uint64(3), RequiredQuorum(4, 670))
	require.Equal(t, uint64(7), RequiredQuorum(10, 670))
}

func TestNextLeaderRotatesDeterministically(t *testing.T) {
	active := []types.ParticipantId{"a", "b", "c"}
	leader, ok := NextLeader(0, active)
	require.True(t, ok)
	require.Equal(t, types.ParticipantId("b"), leader)

	leader, ok = NextLeader(2, active)
	require.True(t, ok)
	require.Equal(t, types.ParticipantId("a"), leader)
}

type jailerFunc func(types.ParticipantId, int64) error

func (f jailerFunc) Jail(p types.ParticipantId, until int64) error { return f(p, until) }
