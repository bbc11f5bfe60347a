// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "errors"

// Sentinel errors returned by the protocol engine.
//
// These are protocol-mismatch errors: the offending message or call is
// rejected and logged, never left to bubble into the event-bus delivery
// loop.
var (
	// ErrNoSuchPending is returned when a protocol message references a
	// PendingRequest that does not exist (already promoted, expired, or
	// never created).
	ErrNoSuchPending = errors.New("orbitalis: no such pending request")

	// ErrNoSuchConnection is returned when an operation references a
	// Connection that does not exist.
	ErrNoSuchConnection = errors.New("orbitalis: no such connection")

	// ErrIncompatibleSchema is returned when a payload's schema does not
	// match a connection's or constraint's SchemaSpec.
	ErrIncompatibleSchema = errors.New("orbitalis: incompatible schema")

	// ErrPolicyRejected is logged when a Policy's allow/block list or
	// maximum cardinality rejects a core while a plugin evaluates a
	// Discover or re-checks a Request.
	ErrPolicyRejected = errors.New("orbitalis: rejected by policy")

	// ErrAlreadyBound is logged when a (remoteId, operationName) pair
	// already has a pending request or connection.
	ErrAlreadyBound = errors.New("orbitalis: remote already bound to this operation")

	// ErrStopped is returned by operations attempted after Stop has been
	// called on an Orbiter.
	ErrStopped = errors.New("orbitalis: orbiter is stopped")
)

// Programmer errors: invalid Constraint or Policy construction. Validity is
// enforced at construction time; a violation is a programmer error, so
// these panic rather than return an error. Exported so callers can match
// on them with [errors.Is] in a recover.
var (
	ErrInvalidConstraint = errors.New("orbitalis: invalid constraint")
	ErrInvalidPolicy     = errors.New("orbitalis: invalid policy")
)
