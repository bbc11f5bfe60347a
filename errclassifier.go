// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "github.com/orbitalis-framework/go-orbitalis/internal/protoerr"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g.,
// "ENOPENDING", "ESCHEMA") that facilitate systematic analysis of
// handshake and connection-lifecycle failures in structured logs.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	cfg.ErrClassifier = ErrClassifierFunc(myClassify)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// sentinelLabels maps this package's sentinel errors to short labels used
// by [DefaultErrClassifier].
var sentinelLabels = map[error]string{
	ErrNoSuchPending:      "ENOPENDING",
	ErrNoSuchConnection:   "ENOCONN",
	ErrIncompatibleSchema: "ESCHEMA",
	ErrPolicyRejected:     "EPOLICY",
	ErrAlreadyBound:       "EALREADYBOUND",
	ErrStopped:            "ESTOPPED",
}

// DefaultErrClassifier classifies this package's sentinel errors (see
// errors.go) and returns "EUNKNOWN" for anything else, or "" for nil.
var DefaultErrClassifier = ErrClassifierFunc(func(err error) string {
	return protoerr.Classify(err, sentinelLabels)
})
