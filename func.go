// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "context"

// Handler is the signature of a plugin [Operation]'s concrete
// implementation.
//
// Call receives the raw payload published to the operation's input topic
// and returns the raw payload to publish to the output topic, or nil if the
// operation's output SchemaSpec is the "no-output" variant. Handlers that
// need to publish zero, or more than one, output event bypass the return
// value and call [Plugin.PublishOutput] directly from within Call; the
// return value remains the common case.
//
// Resource and error-handling contract: a Handler must never panic for
// input it considers invalid; it returns an error instead, which the
// plugin logs at WARN without tearing down the Connection.
type Handler interface {
	Call(ctx context.Context, input []byte) ([]byte, error)
}

// HandlerFunc adapts a function to the [Handler] interface.
//
// Use this to register operations from closures when you don't need a
// dedicated type:
//
//	orbitalis.HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) {
//		return bytes.ToLower(input), nil
//	})
type HandlerFunc func(ctx context.Context, input []byte) ([]byte, error)

var _ Handler = HandlerFunc(nil)

// Call implements [Handler].
func (f HandlerFunc) Call(ctx context.Context, input []byte) ([]byte, error) {
	return f(ctx, input)
}
