// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOrbiterID(t *testing.T) {
	a := NewOrbiterID()
	b := NewOrbiterID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewTopicSuffix(t *testing.T) {
	a := NewTopicSuffix()
	b := NewTopicSuffix()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
