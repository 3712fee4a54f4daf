// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/synchronizer/types"
)

func TestMemoryBusDeliversToSubscriber(t *testing.T) {
	bus := NewMemory(4)
	ch, unsubscribe := bus.Subscribe(TopicTransactions)
	defer unsubscribe()

	txID := types.NewTransactionId()
	payload := TransactionSubmittedPayload{TransactionId: txID, DomainId: "domain-a"}
	msg := Message{
		Kind:      KindTransactionSubmitted,
		Topic:     TopicTransactions,
		Key:       KeyFor(payload),
		Timestamp: time.Now(),
		Payload:   payload,
	}
	require.NoError(t, bus.Publish(TopicTransactions, msg))

	select {
	case got := <-ch:
		require.Equal(t, KindTransactionSubmitted, got.Kind)
		require.Equal(t, txID[:], got.Key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBusDoesNotCrossDeliverTopics(t *testing.T) {
	bus := NewMemory(4)
	txCh, unsubTx := bus.Subscribe(TopicTransactions)
	defer unsubTx()
	consCh, unsubCons := bus.Subscribe(TopicConsensus)
	defer unsubCons()

	require.NoError(t, bus.Publish(TopicConsensus, Message{Kind: KindConsensusResult, Topic: TopicConsensus}))

	select {
	case <-consCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on consensus topic")
	}
	select {
	case <-txCh:
		t.Fatal("transactions subscriber should not have received a consensus-topic message")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryBusReportsFullBuffer(t *testing.T) {
	bus := NewMemory(1)
	_, unsubscribe := bus.Subscribe(TopicEvents)
	defer unsubscribe()

	require.NoError(t, bus.Publish(TopicEvents, Message{Kind: KindHealthPing, Topic: TopicEvents}))
	err := bus.Publish(TopicEvents, Message{Kind: KindHealthPing, Topic: TopicEvents})
	require.Error(t, err)
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemory(4)
	ch, unsubscribe := bus.Subscribe(TopicParticipants)
	unsubscribe()

	_, open := <-ch
	require.False(t, open)
}

func TestKeyForDerivesFromMostSpecificIdentifier(t *testing.T) {
	txID := types.NewTransactionId()
	require.Equal(t, txID[:], KeyFor(ConsensusResultPayload{TransactionId: txID}))

	participant := types.ParticipantId("alice")
	require.Equal(t, []byte(participant), KeyFor(ParticipantJoinedPayload{ParticipantId: participant}))

	require.Nil(t, KeyFor(HealthPingPayload{NodeId: "node-1"}))
}
