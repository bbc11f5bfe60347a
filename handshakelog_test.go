// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandshakeLogContext(logger SLogger) *handshakeLogContext {
	return &handshakeLogContext{
		ErrClassifier: DefaultErrClassifier,
		Logger:        logger,
		SelfID:        "self-1",
		TimeNow:       func() time.Time { return time.Unix(0, 0) },
	}
}

func TestHandshakeLogContextLogSent(t *testing.T) {
	logger, records := newCapturingLogger()
	lc := newTestHandshakeLogContext(logger)

	lc.LogSent("offerSent", "remote-1", "turn_on")

	require.Len(t, *records, 1)
	assert.Equal(t, slog.LevelInfo, (*records)[0].Level)
	assert.Equal(t, "offerSent", (*records)[0].Message)
}

func TestHandshakeLogContextLogProtocolMismatch(t *testing.T) {
	logger, records := newCapturingLogger()
	lc := newTestHandshakeLogContext(logger)

	lc.LogProtocolMismatch("confirmWithoutPending", "remote-1", "turn_on", ErrNoSuchPending)

	require.Len(t, *records, 1)
	assert.Equal(t, slog.LevelWarn, (*records)[0].Level)
}

func TestHandshakeLogContextLogTransportError(t *testing.T) {
	logger, records := newCapturingLogger()
	lc := newTestHandshakeLogContext(logger)

	lc.LogTransportError("publishFailed", "", "", ErrStopped)

	require.Len(t, *records, 1)
	assert.Equal(t, slog.LevelError, (*records)[0].Level)
}
