// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "context"

// newCloseTimeoutWatcher arms a timer that invokes onTimeout unless the
// returned cancel function is called first. It implements the graceful
// close protocol's timeout.
//
// Using [context.AfterFunc] rather than a bare [time.AfterFunc] lets the
// watch be torn down early both on ack arrival and on the initiator's own
// shutdown, without leaking the timer goroutine.
func newCloseTimeoutWatcher(ctx context.Context, onTimeout func()) (cancel func() bool) {
	return context.AfterFunc(ctx, onTimeout)
}
