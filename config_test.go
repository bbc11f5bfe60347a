// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)

	assert.Equal(t, "", cfg.ErrClassifier.Classify(nil))
	assert.Equal(t, "ENOPENDING", cfg.ErrClassifier.Classify(ErrNoSuchPending))

	now := cfg.TimeNow()
	assert.False(t, now.IsZero())

	assert.Equal(t, 1*time.Second, cfg.LoopInterval)
	assert.Equal(t, 30*time.Second, cfg.PendingRequestsExpireAfter)
	assert.Equal(t, time.Duration(0), cfg.CloseConnectionIfUnusedAfter)
	assert.False(t, cfg.RaiseExceptions)
	assert.Nil(t, cfg.Metrics)
}
