// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewOrbiterID returns a fresh UUIDv7 string suitable for an Orbiter's
// stable identity.
//
// This function panics if the system random number generator fails, which
// should only happen under extraordinary circumstances.
func NewOrbiterID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

// NewTopicSuffix returns a fresh UUIDv7 string used to make a generated
// topic name collision-free across restarts and across successive
// connections for the same (remoteId, operationName) pair.
//
// Unlike [NewOrbiterID], a topic suffix is not meant to be stable: a new one
// is minted every time a topic of this shape is generated.
func NewTopicSuffix() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
