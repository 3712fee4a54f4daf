// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import "github.com/luxfi/synchronizer/errs"

// ErrBusFull is returned by Publish when a topic's subscriber buffer is
// saturated (spec section 5, "bounded backpressure at Kafka-facing
// publishers").
var ErrBusFull = errs.New(errs.KindTransportFailure, "transport.Bus", "topic buffer full")

// Bus is the topic-based publish/subscribe contract standing in for the
// Kafka glue of spec section 6. A real implementation backed by a
// broker is external wiring against this interface; this repo ships only
// the in-process one (transport.Memory).
type Bus interface {
	// Publish delivers msg to every current subscriber of topic. It
	// returns ErrBusFull if any subscriber's buffer is saturated rather
	// than blocking the publisher indefinitely.
	Publish(topic Topic, msg Message) error

	// Subscribe returns a channel of future messages on topic and an
	// unsubscribe function. The channel is closed when unsubscribe is
	// called.
	Subscribe(topic Topic) (<-chan Message, func())
}
