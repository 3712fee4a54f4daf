// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/synchronizer/transport"
)

// publish stamps payload with the orchestrator's local clock and hands it
// to the transport bus, if one is wired. A nil bus is a valid
// standalone/test configuration; publish is then a no-op rather than an
// error. A nil local clock only skips the stamp: the message is still
// published, with a zero SenderClock and SenderNodeID.
func (o *Orchestrator) publish(topic transport.Topic, kind transport.Kind, payload any) {
	if o.bus == nil {
		return
	}
	msg := transport.Message{
		Kind:      kind,
		Topic:     topic,
		Key:       transport.KeyFor(payload),
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if o.clock != nil {
		msg.SenderClock = o.clock.Tick()
		msg.SenderNodeID = msg.SenderClock.NodeID
	}
	if err := o.bus.Publish(topic, msg); err != nil {
		o.log.Warn("bus publish dropped by a saturated subscriber",
			zap.String("topic", string(topic)), zap.String("kind", kind.String()), zap.Error(err))
	}
}

// consumeConsensusVotes subscribes to the consensus topic and drives
// HandleConsensusVote for every vote a remote node publishes there, the
// transport-backed counterpart to a direct in-process caller of that
// method (spec section 4.E/4.G boundary: "a real deployment receives votes
// over the transport bus").
func (o *Orchestrator) consumeConsensusVotes(ctx context.Context) {
	defer o.wg.Done()
	if o.bus == nil {
		return
	}
	ch, unsubscribe := o.bus.Subscribe(transport.TopicConsensus)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p, ok := msg.Payload.(transport.ConsensusVotePayload)
			if !ok {
				continue
			}
			if o.clock != nil {
				o.clock.Update(msg.SenderClock)
			}
			if err := o.HandleConsensusVote(ctx, p.TransactionId, p.Vote); err != nil {
				o.log.Error("handling bus-delivered consensus vote failed",
					zap.Error(err), zap.String("tx", p.TransactionId.String()))
			}
		}
	}
}
