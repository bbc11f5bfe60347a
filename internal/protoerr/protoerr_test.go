// SPDX-License-Identifier: GPL-3.0-or-later

package protoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("sentinel")

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, "", Classify(nil, map[error]string{errSentinel: "ESENTINEL"}))
}

func TestClassifyKnown(t *testing.T) {
	known := map[error]string{errSentinel: "ESENTINEL"}
	assert.Equal(t, "ESENTINEL", Classify(errSentinel, known))
	assert.Equal(t, "ESENTINEL", Classify(fmt.Errorf("wrapped: %w", errSentinel), known))
}

func TestClassifyUnknown(t *testing.T) {
	known := map[error]string{errSentinel: "ESENTINEL"}
	assert.Equal(t, "EUNKNOWN", Classify(errors.New("mystery"), known))
}
