// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCloseTimeoutWatcherFires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	fired := make(chan struct{})
	cancelWatch := newCloseTimeoutWatcher(ctx, func() { close(fired) })
	defer cancelWatch()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout watcher never fired")
	}
}

func TestCloseTimeoutWatcherCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{})
	cancelWatch := newCloseTimeoutWatcher(ctx, func() { close(fired) })
	stopped := cancelWatch()
	assert.True(t, stopped)

	select {
	case <-fired:
		t.Fatal("timeout watcher fired after cancel")
	case <-time.After(30 * time.Millisecond):
	}
}
