// SPDX-License-Identifier: GPL-3.0-or-later

// Package bus defines the event-bus transport Orbitalis consumes. The
// transport itself — publish, subscribe, multi-unsubscribe, and per-topic
// delivery — is an external collaborator: local, MQTT, or other backends
// are interchangeable behind this interface. See package bus/local for an
// in-process reference implementation.
package bus

import (
	"context"
	"errors"
)

// ErrBusClosed is returned by a [Bus] implementation's methods once the
// bus has been shut down.
var ErrBusClosed = errors.New("bus: closed")

// Handler is invoked once per message delivered to a subscribed topic.
// Delivery semantics are at-most-one handler per (client, topic); no
// ordering, durability, or de-duplication is assumed.
type Handler func(ctx context.Context, topic string, payload []byte)

// Bus abstracts the publish/subscribe transport an [orbitalis.Orbiter]
// runs over.
type Bus interface {
	// Connect establishes the transport connection. Called once by
	// Orbiter.Start.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. Publishing is not exclusive:
	// multiple goroutines may publish concurrently.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler to be called for every message
	// delivered to topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Unsubscribe removes any handler registered for topic.
	Unsubscribe(ctx context.Context, topic string) error

	// MultiUnsubscribe unsubscribes every topic in topics. If parallel is
	// true, implementations may unsubscribe concurrently; callers must
	// not rely on any particular completion order either way.
	MultiUnsubscribe(ctx context.Context, topics []string, parallel bool) error
}
