// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"sync"
	"time"
)

// PendingRequest is a reservation created when either role has sent a
// protocol message and is waiting for the counterpart.
//
// Fields are progressively filled in as the handshake advances; Lock must
// be held while mutating them or while promoting the PendingRequest to a
// [Connection].
type PendingRequest struct {
	// Lock serializes access to this PendingRequest. Non-reentrant;
	// narrow critical sections only.
	Lock sync.Mutex

	OperationName string
	RemoteID      string
	CreatedAt     time.Time

	// Input and Output are filled in once known (from the Offer on the
	// core side, or from the Constraint match on the plugin side).
	Input  SchemaSpec
	Output SchemaSpec

	// The four wire topics of the forthcoming connection. Not all are
	// known at creation time; see core.go/plugin.go for who fills in
	// what and when.
	InputTopic         string
	OutputTopic        string
	IncomingCloseTopic string
	CloseToRemoteTopic string
}

// age returns how long ago the PendingRequest was created.
func (p *PendingRequest) age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// pendingKey is the (remoteId, operationName) registry key.
type pendingKey struct {
	remoteID      string
	operationName string
}

// registry is the generic two-level (remoteId → operationName → value)
// store shared by the pending-request and connection registries. A short
// mutex guards insert/remove; entries carry their own lock for in-place
// mutation.
type registry[V any] struct {
	mu      sync.Mutex
	entries map[pendingKey]V
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{entries: make(map[pendingKey]V)}
}

// get returns the entry for (remoteID, operationName), if any.
func (r *registry[V]) get(remoteID, operationName string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[pendingKey{remoteID, operationName}]
	return v, ok
}

// has reports whether an entry exists for (remoteID, operationName).
func (r *registry[V]) has(remoteID, operationName string) bool {
	_, ok := r.get(remoteID, operationName)
	return ok
}

// insert adds an entry, returning false without mutating if one already
// exists under the same key.
func (r *registry[V]) insert(remoteID, operationName string, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pendingKey{remoteID, operationName}
	if _, exists := r.entries[key]; exists {
		return false
	}
	r.entries[key] = v
	return true
}

// remove deletes the entry for (remoteID, operationName), reporting
// whether one existed.
func (r *registry[V]) remove(remoteID, operationName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pendingKey{remoteID, operationName}
	if _, exists := r.entries[key]; !exists {
		return false
	}
	delete(r.entries, key)
	return true
}

// replace atomically removes the old entry and inserts v under the same
// key, used for pending→connection promotion.
func (r *registry[V]) replace(remoteID, operationName string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[pendingKey{remoteID, operationName}] = v
}

// countByOperation returns the number of entries for operationName across
// all remotes (used by Policy.Maximum accounting).
func (r *registry[V]) countByOperation(operationName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.entries {
		if key.operationName == operationName {
			n++
		}
	}
	return n
}

// snapshot returns a copy of all current values, taken under the registry
// mutex.
func (r *registry[V]) snapshot() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]V, 0, len(r.entries))
	for _, v := range r.entries {
		out = append(out, v)
	}
	return out
}

// remoteIDsForOperation returns the remoteIDs that have an entry for
// operationName, used to derive a residual Need.
func (r *registry[V]) remoteIDsForOperation(operationName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for key := range r.entries {
		if key.operationName == operationName {
			ids = append(ids, key.remoteID)
		}
	}
	return ids
}
