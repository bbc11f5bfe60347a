// SPDX-License-Identifier: GPL-3.0-or-later

// Package orbitalis implements the handshake and connection-lifecycle
// engine shared by Orbitalis's two roles, [Core] and [Plugin].
//
// # Core Abstraction
//
// Two role-asymmetric participants called Orbiters — Cores (consumers of
// remote capabilities) and Plugins (providers) — find each other over a
// publish/subscribe event bus, negotiate a set of named operations, and
// maintain long-lived bidirectional [Connection]s through which the core
// drives the plugin and receives asynchronous results.
//
// # Handshake
//
// The protocol has four phases:
//
// - Discover: a Core publishes its residual need for required operations
// on a well-known topic ([DiscoverMessage]).
// - Offer: each compatible Plugin replies with the operations it can
// lend, on the Core's per-instance offer topic ([OfferMessage]).
// - Request or Reject: the Core replies per-operation with a
// [RequestOperationMessage] or [RejectOperationMessage].
// - Confirm or NoLongerAvailable: the Plugin replies with a
// [ConfirmConnectionMessage] or [OperationNoLongerAvailableMessage].
//
// A confirmed pair opens an operation-specific input topic (core to plugin)
// and optional output topic (plugin to core), plus close and keepalive
// topics.
//
// # Compatibility Algebra
//
// [SchemaSpec] is a three-state descriptor — Undefined, Empty, or Explicit —
// compared via [SchemaSpec.IsCompatible]. A plugin's operation is
// constraint-compatible with a core's [Constraint] iff its identifier passes
// the [Policy] or [Constraint]'s allow/block list and its input and output
// schemas each intersect some listed [SchemaSpec] (see constraint.go,
// policy.go).
//
// # Transport
//
// The event bus itself is consumed as an interface (package bus) and is not
// implemented here; package bus/local ships an in-process reference
// implementation used by this package's own tests. Schema fingerprinting,
// concrete operation handlers, and CLI tooling are likewise out of scope —
// see [Handler] for the boundary where caller-supplied logic plugs in.
//
// # Concurrency
//
// Each [Orbiter] owns two registries — pending requests and connections —
// keyed by remoteId then operationName. Both are mutated only while holding
// the per-entry lock; a short registry mutex additionally guards
// insert/remove. A single periodic loop per Orbiter prunes expired pending
// requests, closes idle connections, and emits keepalives (see orbiter.go).
//
// # Observability
//
// Handshake and close-protocol events are logged via [SLogger] (compatible
// with [log/slog]); by default, logging is disabled. Error classification is
// configurable via [ErrClassifier]; by default, [DefaultErrClassifier]
// recognizes this package's sentinel errors. An optional [Metrics] collector
// exposes discover/offer/connection counters to Prometheus.
package orbitalis
