// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"log/slog"
	"time"
)

// handshakeLogContext holds common logging state for the four-phase
// handshake (Discover/Offer/Request-or-Reject/Confirm-or-NoLongerAvailable)
// and for the close protocol.
//
// This consolidates the logging boilerplate shared by [Core] and [Plugin]:
// one log record per message sent, received, or dropped, and per transport
// failure, with a stable set of fields so log
// consumers can correlate events across an Orbiter's lifetime.
type handshakeLogContext struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// SelfID is this Orbiter's identity.
	SelfID string

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// LogSent logs the emission of a handshake message.
func (lc *handshakeLogContext) LogSent(event, remoteID, operationName string) {
	lc.Logger.Info(
		event,
		slog.String("selfId", lc.SelfID),
		slog.String("remoteId", remoteID),
		slog.String("operationName", operationName),
		slog.Time("t", lc.TimeNow()),
	)
}

// LogReceived logs the receipt of a handshake message.
func (lc *handshakeLogContext) LogReceived(event, remoteID, operationName string) {
	lc.Logger.Info(
		event,
		slog.String("selfId", lc.SelfID),
		slog.String("remoteId", remoteID),
		slog.String("operationName", operationName),
		slog.Time("t", lc.TimeNow()),
	)
}

// LogProtocolMismatch logs a dropped message.
func (lc *handshakeLogContext) LogProtocolMismatch(event, remoteID, operationName string, err error) {
	lc.Logger.Warn(
		event,
		slog.String("selfId", lc.SelfID),
		slog.String("remoteId", remoteID),
		slog.String("operationName", operationName),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.Time("t", lc.TimeNow()),
	)
}

// LogTransportError logs a publish/subscribe/unsubscribe failure.
func (lc *handshakeLogContext) LogTransportError(event, remoteID, operationName string, err error) {
	lc.Logger.Error(
		event,
		slog.String("selfId", lc.SelfID),
		slog.String("remoteId", remoteID),
		slog.String("operationName", operationName),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.Time("t", lc.TimeNow()),
	)
}
