// SPDX-License-Identifier: GPL-3.0-or-later

// Package protoerr classifies protocol-level errors into short, descriptive
// labels for structured logging. Orbitalis's sentinel errors are
// protocol-level, not OS-level, so there is no platform split and no build
// tags are needed.
package protoerr

import "errors"

// Classify maps a protocol error to a short label: "" if err is nil, the
// label of the first sentinel in known that err matches via [errors.Is],
// or "EUNKNOWN" if none matches.
func Classify(err error, known map[error]string) string {
	if err == nil {
		return ""
	}
	for sentinel, label := range known {
		if errors.Is(err, sentinel) {
			return label
		}
	}
	return "EUNKNOWN"
}
