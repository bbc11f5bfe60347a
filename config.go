// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "time"

// Config holds common configuration for an [Orbiter].
//
// Pass this to [NewCore] and [NewPlugin] to pre-wire dependencies. All
// fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use for structured logging.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// Metrics is an optional prometheus collector. Left nil, no metrics
	// are recorded.
	//
	// Set by [NewConfig] to nil.
	Metrics *Metrics

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// LoopInterval is the tick period of the periodic loop.
	//
	// Set by [NewConfig] to 1 second.
	LoopInterval time.Duration

	// PendingRequestsExpireAfter is the age limit for a PendingRequest
	// before the periodic loop discards it.
	//
	// Set by [NewConfig] to 30 seconds.
	PendingRequestsExpireAfter time.Duration

	// CloseConnectionIfUnusedAfter, if non-zero, closes a Connection once
	// it has gone unused for this long. Zero disables the sweep.
	//
	// Set by [NewConfig] to 0 (disabled).
	CloseConnectionIfUnusedAfter time.Duration

	// ConsiderOthersDeadAfter is the liveness deadline: a remote with no
	// keepalive within this window is reported in deadRemoteIds.
	//
	// Set by [NewConfig] to 30 seconds.
	ConsiderOthersDeadAfter time.Duration

	// ConsiderMeDeadAfter is advertised to remotes in Discover/Offer
	// messages as the deadline they should apply to us.
	//
	// Set by [NewConfig] to 30 seconds.
	ConsiderMeDeadAfter time.Duration

	// SendKeepaliveBeforeTimelimit is how far ahead of the remote's
	// dead-deadline we send a fresh keepalive.
	//
	// Set by [NewConfig] to 10 seconds.
	SendKeepaliveBeforeTimelimit time.Duration

	// GracefulCloseTimeout bounds how long a graceful close waits for an
	// ack before falling back to a graceless removal.
	//
	// Set by [NewConfig] to 5 seconds.
	GracefulCloseTimeout time.Duration

	// RaiseExceptions, if true, re-raises transport errors (as panics)
	// after rolling back speculative state. If false (the default),
	// transport errors are only logged.
	//
	// Set by [NewConfig] to false.
	RaiseExceptions bool
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier:                DefaultErrClassifier,
		Logger:                       DefaultSLogger(),
		Metrics:                      nil,
		TimeNow:                      time.Now,
		LoopInterval:                 1 * time.Second,
		PendingRequestsExpireAfter:   30 * time.Second,
		CloseConnectionIfUnusedAfter: 0,
		ConsiderOthersDeadAfter:      30 * time.Second,
		ConsiderMeDeadAfter:          30 * time.Second,
		SendKeepaliveBeforeTimelimit: 10 * time.Second,
		GracefulCloseTimeout:         5 * time.Second,
		RaiseExceptions:              false,
	}
}
