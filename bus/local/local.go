// SPDX-License-Identifier: GPL-3.0-or-later

// Package local provides an in-process, goroutine-based reference
// implementation of [bus.Bus]. It is consumer-grade reference tooling for
// tests and examples, not a production transport — MQTT or other real
// backends remain genuinely external collaborators.
package local

import (
	"context"
	"sync"

	"github.com/orbitalis-framework/go-orbitalis/bus"
	"golang.org/x/sync/errgroup"
)

// Bus is an in-process [bus.Bus]. Delivery is asynchronous: Publish spawns
// one goroutine per currently-subscribed handler and returns without
// waiting for handlers to run, matching the no-ordering, at-most-one-
// handler-per-topic contract declared by [bus.Handler].
//
// The zero value is not usable; construct with [New].
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]bus.Handler
	closed   bool
}

var _ bus.Bus = (*Bus)(nil)

// New returns a ready-to-use in-process [*Bus].
func New() *Bus {
	return &Bus{handlers: make(map[string]bus.Handler)}
}

// Connect is a no-op: the in-process bus has no external connection to
// establish.
func (b *Bus) Connect(ctx context.Context) error {
	return nil
}

// Publish delivers payload to the handler currently subscribed to topic,
// if any, on a new goroutine. Publishing to a topic with no subscriber is
// not an error: it is simply dropped, matching a real bus's behavior.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	handler, ok := b.handlers[topic]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return bus.ErrBusClosed
	}
	if !ok {
		return nil
	}
	go handler(ctx, topic, payload)
	return nil
}

// Subscribe registers handler for topic, replacing any existing handler
// (at-most-one handler per topic).
func (b *Bus) Subscribe(ctx context.Context, topic string, handler bus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return bus.ErrBusClosed
	}
	b.handlers[topic] = handler
	return nil
}

// Unsubscribe removes the handler registered for topic, if any.
func (b *Bus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

// MultiUnsubscribe unsubscribes every topic in topics. When parallel is
// true, an [errgroup.Group] fans the unsubscribes out concurrently; this
// reference implementation's Unsubscribe never fails, but the fan-out
// shape mirrors what a remote transport's MultiUnsubscribe would need.
func (b *Bus) MultiUnsubscribe(ctx context.Context, topics []string, parallel bool) error {
	if !parallel {
		for _, topic := range topics {
			if err := b.Unsubscribe(ctx, topic); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			return b.Unsubscribe(gctx, topic)
		})
	}
	return g.Wait()
}

// Close marks the bus closed: further Publish/Subscribe calls fail. Existing
// subscriptions are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string]bus.Handler)
	return nil
}
