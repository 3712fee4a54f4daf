// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mediator

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

func (k participantKey) sign(msg []byte) []byte {
	sig, err := k.sk.Sign(msg)
	if err != nil {
		panic(err)
	}
	return bls.SignatureToBytes(sig)
}

func signedConsent(t *testing.T, key participantKey, txID types.TransactionId, participant types.ParticipantId, consent bool, ts time.Time) types.ConsentInfo {
	t.Helper()
	msg := ConsentMessage(txID, participant, consent, ts)
	return types.ConsentInfo{
		Participant: participant,
		Consent:     consent,
		Signature:   key.sign(msg),
		Timestamp:   ts,
	}
}

func newTestMediator(t *testing.T, keys map[types.ParticipantId]participantKey) (*Mediator, store.Store) {
	t.Helper()
	st := store.NewMemory()
	lookup := func(p types.ParticipantId) ([]byte, bool) {
		k, ok := keys[p]
		if !ok {
			return nil, false
		}
		return k.pk, true
	}
	terminal := func(types.TransactionId) (types.TransactionStatus, bool) { return types.StatusReceived, false }
	m := New(Config{DefaultTimeout: 50 * time.Millisecond}, st, logtest.Nop{}, DefaultConditionEvaluator{}, lookup, terminal, nil, nil, "domain-a")
	return m, st
}

func TestMediatorApprovesOnAllConsents(t *testing.T) {
	alice := newParticipantKey(t)
	bob := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice, "bob": bob}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	required := []types.ParticipantId{"alice", "bob"}
	require.NoError(t, m.CreateSession(tx, required, types.PriorityNormal))

	now := time.Now()
	require.NoError(t, m.SubmitConsent(context.Background(), tx, signedConsent(t, alice, tx.TransactionId, "alice", true, now)))
	require.NoError(t, m.SubmitConsent(context.Background(), tx, signedConsent(t, bob, tx.TransactionId, "bob", true, now)))

	session, ok := m.Session(tx.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.MediationApproved, session.Status)
}

func TestMediatorRejectsWhenAnyParticipantWithholds(t *testing.T) {
	alice := newParticipantKey(t)
	bob := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice, "bob": bob}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	required := []types.ParticipantId{"alice", "bob"}
	require.NoError(t, m.CreateSession(tx, required, types.PriorityNormal))

	now := time.Now()
	require.NoError(t, m.SubmitConsent(context.Background(), tx, signedConsent(t, alice, tx.TransactionId, "alice", false, now)))

	session, ok := m.Session(tx.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.MediationRejected, session.Status)
	require.Equal(t, []types.ParticipantId{"alice"}, session.Result.RejectingParticipants)
}

func TestMediatorDuplicateConsentRejected(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	require.NoError(t, m.CreateSession(tx, []types.ParticipantId{"alice", "bob"}, types.PriorityNormal))

	now := time.Now()
	info := signedConsent(t, alice, tx.TransactionId, "alice", true, now)
	require.NoError(t, m.SubmitConsent(context.Background(), tx, info))
	err := m.SubmitConsent(context.Background(), tx, info)
	require.Error(t, err)
}

func TestMediatorInvalidSignatureRejected(t *testing.T) {
	alice := newParticipantKey(t)
	mallory := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	require.NoError(t, m.CreateSession(tx, []types.ParticipantId{"alice"}, types.PriorityNormal))

	now := time.Now()
	// signed with mallory's key but claims to be alice: must fail verification
	// against alice's registered public key.
	forged := signedConsent(t, mallory, tx.TransactionId, "alice", true, now)
	err := m.SubmitConsent(context.Background(), tx, forged)
	require.Error(t, err)
}

func TestMediatorTimesOutWhenConsentMissing(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	require.NoError(t, m.CreateSession(tx, []types.ParticipantId{"alice", "bob"}, types.PriorityNormal))

	now := time.Now()
	require.NoError(t, m.SubmitConsent(context.Background(), tx, signedConsent(t, alice, tx.TransactionId, "alice", true, now)))

	session, ok := m.Session(tx.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.MediationValidating, session.Status)

	time.Sleep(75 * time.Millisecond)
	m.SweepTimeouts(context.Background())

	session, ok = m.Session(tx.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.MediationTimedOut, session.Status)
	require.Equal(t, []types.ParticipantId{"bob"}, session.Result.MissingConsents)
}

func TestMediatorCancelOnlyFromWaitingForConsent(t *testing.T) {
	alice := newParticipantKey(t)
	keys := map[types.ParticipantId]participantKey{"alice": alice}
	m, _ := newTestMediator(t, keys)

	tx := types.CrossDomainTransaction{TransactionId: types.NewTransactionId()}
	require.NoError(t, m.CreateSession(tx, []types.ParticipantId{"alice"}, types.PriorityNormal))
	require.NoError(t, m.Cancel(context.Background(), tx.TransactionId, "submitter withdrew"))

	session, ok := m.Session(tx.TransactionId)
	require.True(t, ok)
	require.Equal(t, types.MediationCancelled, session.Status)

	err := m.Cancel(context.Background(), tx.TransactionId, "too late")
	require.Error(t, err)
}

func TestMaxAmountConditionEnforced(t *testing.T) {
	eval := DefaultConditionEvaluator{}
	tx := &types.CrossDomainTransaction{Metadata: map[string]string{"amount": "500"}}
	cond := types.Condition{Type: types.ConditionMaxAmount, Amount: 1000}
	ok, err := eval.Evaluate(cond, tx, time.Now(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	cond.Amount = 100
	ok, err = eval.Evaluate(cond, tx, time.Now(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCustomConditionDefaultAllowsUnregisteredPredicate(t *testing.T) {
	eval := DefaultConditionEvaluator{}
	cond := types.Condition{Type: types.ConditionCustom, Key: "kyc", Value: "pending"}
	ok, err := eval.Evaluate(cond, &types.CrossDomainTransaction{}, time.Now(), nil)
	require.NoError(t, err)
	require.True(t, ok)
}
