// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"sync"
	"time"
)

// Acquaintance is per-remote bookkeeping kept by both roles. It never gates protocol decisions by itself: those remain
// governed by the registries and Policy/Constraint. It backs
// [Orbiter.DeadRemoteIDs] and [Orbiter.Acquaintances].
type Acquaintance struct {
	// RemoteID is the remote Orbiter's identity.
	RemoteID string

	// LastSeen is the last time a message (handshake or keepalive) was
	// received from RemoteID.
	LastSeen time.Time

	// ConsiderDeadAfter is the liveness window advertised by the remote
	// itself (Discover and Offer messages carry the sender's
	// ConsiderMeDeadAfter).
	ConsiderDeadAfter time.Duration

	// OfferedOperations is the last set of operations this remote
	// offered (core-side acquaintance of a plugin).
	OfferedOperations []OfferedOperation

	// NeededOperations is the last set of operations this remote needed
	// (plugin-side acquaintance of a core).
	NeededOperations map[string]Constraint

	// LastKeepaliveSent is the last time we sent this remote a keepalive
	//.
	LastKeepaliveSent time.Time
}

// acquaintanceDirectory is the concurrency-safe store of [Acquaintance]
// records, keyed by remoteId.
type acquaintanceDirectory struct {
	mu      sync.Mutex
	entries map[string]*Acquaintance
}

func newAcquaintanceDirectory() *acquaintanceDirectory {
	return &acquaintanceDirectory{entries: make(map[string]*Acquaintance)}
}

// touch records that remoteID was seen at now, creating the record if
// needed, and returns a copy of the updated record.
func (d *acquaintanceDirectory) touch(remoteID string, now time.Time) Acquaintance {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.entries[remoteID]
	if !ok {
		a = &Acquaintance{RemoteID: remoteID}
		d.entries[remoteID] = a
	}
	a.LastSeen = now
	return *a
}

// update applies fn to the record for remoteID under the directory lock,
// creating the record if needed.
func (d *acquaintanceDirectory) update(remoteID string, fn func(*Acquaintance)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.entries[remoteID]
	if !ok {
		a = &Acquaintance{RemoteID: remoteID}
		d.entries[remoteID] = a
	}
	fn(a)
}

// markKeepaliveSent records that a keepalive was just sent to remoteID.
func (d *acquaintanceDirectory) markKeepaliveSent(remoteID string, now time.Time) {
	d.update(remoteID, func(a *Acquaintance) {
		a.LastKeepaliveSent = now
	})
}

// snapshot returns a copy of all known acquaintances.
func (d *acquaintanceDirectory) snapshot() []Acquaintance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Acquaintance, 0, len(d.entries))
	for _, a := range d.entries {
		out = append(out, *a)
	}
	return out
}

// deadSince computes the ids considered dead as of now: those whose
// LastSeen is further than deadAfter in the past.
func (d *acquaintanceDirectory) deadSince(now time.Time, deadAfter time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var dead []string
	for id, a := range d.entries {
		if a.LastSeen.IsZero() {
			continue
		}
		if now.Sub(a.LastSeen) > deadAfter {
			dead = append(dead, id)
		}
	}
	return dead
}
