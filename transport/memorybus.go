// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"sync"
)

// Memory is an in-process Bus: one buffered channel per subscriber per
// topic, fanned out on Publish. Publish never blocks; a subscriber whose
// buffer is full is simply skipped for that message and the publisher
// observes ErrBusFull once any subscriber was dropped.
type Memory struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[Topic]map[int]chan Message
	next int
}

// NewMemory constructs an in-process Bus with the given per-subscriber
// channel capacity.
func NewMemory(bufferSize int) *Memory {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Memory{
		bufferSize: bufferSize,
		subs:       make(map[Topic]map[int]chan Message),
	}
}

func (m *Memory) Subscribe(topic Topic) (<-chan Message, func()) {
	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.next
	m.next++
	ch := make(chan Message, m.bufferSize)
	m.subs[topic][id] = ch
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.subs[topic]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
		}
	}
	return ch, unsubscribe
}

func (m *Memory) Publish(topic Topic, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dropped := false
	for _, ch := range m.subs[topic] {
		select {
		case ch <- msg:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrBusFull
	}
	return nil
}

var _ Bus = (*Memory)(nil)
