// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/orbitalis-framework/go-orbitalis/bus"
	"golang.org/x/sync/errgroup"
)

// roleHooks are the role-specific extension points both [Core] and [Plugin]
// implement.
type roleHooks interface {
	onStart(ctx context.Context) error
	onStop(ctx context.Context) error
	onLoopIteration(ctx context.Context)
}

// Orbiter is the identity, transport wiring, registries, liveness tracking,
// close protocol, and periodic loop shared by [Core] and [Plugin]. Callers do not construct an Orbiter directly; use
// [NewCore] or [NewPlugin].
type Orbiter struct {
	id  string
	bus bus.Bus
	cfg *Config
	log *handshakeLogContext

	pending     *registry[*PendingRequest]
	connections *registry[*Connection]
	acq         *acquaintanceDirectory

	hooks roleHooks

	mu           sync.Mutex
	started      bool
	stopped      bool
	loopCancel   context.CancelFunc
	loopDone     chan struct{}
	loopPaused   bool
	newConnCh    chan struct{}
	subscribedOn map[string]struct{} // topics subscribed by this Orbiter, for Stop's I5 invariant
}

func newOrbiter(id string, transport bus.Bus, cfg *Config, hooks roleHooks) *Orbiter {
	if cfg == nil {
		cfg = NewConfig()
	}
	o := &Orbiter{
		id:           id,
		bus:          transport,
		cfg:          cfg,
		pending:      newRegistry[*PendingRequest](),
		connections:  newRegistry[*Connection](),
		acq:          newAcquaintanceDirectory(),
		hooks:        hooks,
		newConnCh:    make(chan struct{}),
		subscribedOn: make(map[string]struct{}),
	}
	o.log = &handshakeLogContext{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
		SelfID:        id,
		TimeNow:       cfg.TimeNow,
	}
	return o
}

// ID returns this Orbiter's stable identity.
func (o *Orbiter) ID() string { return o.id }

// subscribe wraps bus.Subscribe with bookkeeping (for the Stop-time
// unsubscribe-everything invariant) and transport-error logging. It never
// panics itself: callers that need RaiseExceptions semantics must roll back
// any speculative state they already mutated and then call
// [Orbiter.raiseIfConfigured] before returning the error.
func (o *Orbiter) subscribe(ctx context.Context, topic string, handler bus.Handler) error {
	if err := o.bus.Subscribe(ctx, topic, handler); err != nil {
		o.log.LogTransportError("subscribeFailed", "", "", err)
		return err
	}
	o.mu.Lock()
	o.subscribedOn[topic] = struct{}{}
	o.mu.Unlock()
	return nil
}

// unsubscribe wraps bus.Unsubscribe with bookkeeping. See [Orbiter.subscribe]
// for the RaiseExceptions contract.
func (o *Orbiter) unsubscribe(ctx context.Context, topic string) error {
	err := o.bus.Unsubscribe(ctx, topic)
	o.mu.Lock()
	delete(o.subscribedOn, topic)
	o.mu.Unlock()
	if err != nil {
		o.log.LogTransportError("unsubscribeFailed", "", "", err)
	}
	return err
}

// publish wraps bus.Publish with transport-error logging. See
// [Orbiter.subscribe] for the RaiseExceptions contract.
func (o *Orbiter) publish(ctx context.Context, topic string, payload []byte) error {
	if err := o.bus.Publish(ctx, topic, payload); err != nil {
		o.log.LogTransportError("publishFailed", "", "", err)
		return err
	}
	return nil
}

// raiseIfConfigured re-raises err as a panic when RaiseExceptions is set.
// Call only after any speculative state mutated by the caller has already
// been rolled back.
func (o *Orbiter) raiseIfConfigured(err error) {
	if err != nil && o.cfg.RaiseExceptions {
		panic(err)
	}
}

// checkNotStopped returns [ErrStopped] once Stop has completed; public
// operations that send, receive, or close on behalf of a stopped Orbiter
// check this first.
func (o *Orbiter) checkNotStopped() error {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	return nil
}

// Start connects the event bus, subscribes to the two keepalive topics,
// runs the role-specific start hook, and (if LoopInterval > 0) launches the
// periodic loop. Idempotent: calling Start twice is a no-op.
func (o *Orbiter) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	if err := o.bus.Connect(ctx); err != nil {
		o.log.LogTransportError("connectFailed", "", "", err)
		return err
	}
	if err := o.subscribe(ctx, keepaliveTopic(o.id), o.handleKeepalive); err != nil {
		o.raiseIfConfigured(err)
		return err
	}
	if err := o.subscribe(ctx, keepaliveRequestTopic(o.id), o.handleKeepaliveRequest); err != nil {
		o.raiseIfConfigured(err)
		return err
	}
	if err := o.hooks.onStart(ctx); err != nil {
		return err
	}

	if o.cfg.LoopInterval > 0 {
		loopCtx, cancel := context.WithCancel(context.Background())
		o.mu.Lock()
		o.loopCancel = cancel
		o.loopDone = make(chan struct{})
		o.mu.Unlock()
		go o.runLoop(loopCtx)
	}
	return nil
}

// Stop cancels the loop (and awaits its termination), runs the
// role-specific stop hook, and unsubscribes from every topic this Orbiter
// owns. Idempotent.
func (o *Orbiter) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	cancel := o.loopCancel
	done := o.loopDone
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	err := o.hooks.onStop(ctx)

	o.mu.Lock()
	topics := make([]string, 0, len(o.subscribedOn))
	for t := range o.subscribedOn {
		topics = append(topics, t)
	}
	o.mu.Unlock()
	if len(topics) > 0 {
		_ = o.bus.MultiUnsubscribe(ctx, topics, true)
		o.mu.Lock()
		o.subscribedOn = make(map[string]struct{})
		o.mu.Unlock()
	}
	return err
}

// Pause suspends the periodic loop between iterations.
func (o *Orbiter) Pause() {
	o.mu.Lock()
	o.loopPaused = true
	o.mu.Unlock()
}

// Resume un-pauses the periodic loop.
func (o *Orbiter) Resume() {
	o.mu.Lock()
	o.loopPaused = false
	o.mu.Unlock()
}

// RetrieveConnections returns Connections matching filter.
func (o *Orbiter) RetrieveConnections(filter ConnectionFilter) []*Connection {
	all := o.connections.snapshot()
	out := make([]*Connection, 0, len(all))
	for _, c := range all {
		if filter.matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// Acquaintances returns the current acquaintance records.
func (o *Orbiter) Acquaintances() []Acquaintance {
	return o.acq.snapshot()
}

// DeadRemoteIDs returns the remotes with no keepalive within
// ConsiderOthersDeadAfter.
func (o *Orbiter) DeadRemoteIDs() []string {
	return o.acq.deadSince(o.cfg.TimeNow(), o.cfg.ConsiderOthersDeadAfter)
}

// SendKeepalive publishes a fresh [KeepaliveMessage] to remoteID's
// keepalive topic and records LastKeepaliveSent.
func (o *Orbiter) SendKeepalive(ctx context.Context, remoteID string) error {
	if err := o.checkNotStopped(); err != nil {
		return err
	}
	msg := KeepaliveMessage{FromID: o.id}
	payload, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	if err := o.publish(ctx, keepaliveTopic(remoteID), payload); err != nil {
		o.raiseIfConfigured(err)
		return err
	}
	o.acq.markKeepaliveSent(remoteID, o.cfg.TimeNow())
	return nil
}

// SendKeepaliveRequest publishes a [KeepaliveRequestMessage] to remoteID,
// asking it to publish a fresh keepalive back to us.
func (o *Orbiter) SendKeepaliveRequest(ctx context.Context, remoteID string) error {
	if err := o.checkNotStopped(); err != nil {
		return err
	}
	msg := KeepaliveRequestMessage{FromID: o.id, ReplyTopic: keepaliveTopic(o.id)}
	payload, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	if err := o.publish(ctx, keepaliveRequestTopic(remoteID), payload); err != nil {
		o.raiseIfConfigured(err)
		return err
	}
	return nil
}

// handleKeepalive implements the keepalive receive side.
func (o *Orbiter) handleKeepalive(ctx context.Context, topic string, payload []byte) {
	var msg KeepaliveMessage
	if err := unmarshalMessage(payload, &msg); err != nil {
		o.log.LogProtocolMismatch("keepaliveDecodeFailed", "", "", err)
		return
	}
	o.acq.touch(msg.FromID, o.cfg.TimeNow())
}

// handleKeepaliveRequest implements the keepalive-request receive side.
func (o *Orbiter) handleKeepaliveRequest(ctx context.Context, topic string, payload []byte) {
	var msg KeepaliveRequestMessage
	if err := unmarshalMessage(payload, &msg); err != nil {
		o.log.LogProtocolMismatch("keepaliveRequestDecodeFailed", "", "", err)
		return
	}
	out := KeepaliveMessage{FromID: o.id}
	body, err := marshalMessage(out)
	if err != nil {
		return
	}
	o.raiseIfConfigured(o.publish(ctx, msg.ReplyTopic, body))
}

// awaitNewConnection blocks until a Connection is inserted into the
// registry, or ctx is done.
func (o *Orbiter) awaitNewConnection(ctx context.Context) error {
	o.mu.Lock()
	ch := o.newConnCh
	o.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifyNewConnection fires awaitNewConnection waiters exactly once and
// arms a fresh channel for the next insertion (edge-triggered, no missed
// wakeups: replacement happens under the same lock as the broadcast).
func (o *Orbiter) notifyNewConnection() {
	o.mu.Lock()
	close(o.newConnCh)
	o.newConnCh = make(chan struct{})
	o.mu.Unlock()
}

func marshalMessage(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalMessage(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// runLoop is the single goroutine backing the periodic tick: on each tick it
// sweeps expired pending requests, sweeps idle
// connections, fans keepalives out to acquaintances nearing their deadline,
// and finally runs the role-specific onLoopIteration hook. The three sweep
// steps run concurrently via [errgroup.Group].
func (o *Orbiter) runLoop(ctx context.Context) {
	defer close(o.loopDone)
	ticker := time.NewTicker(o.cfg.LoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			paused := o.loopPaused
			o.mu.Unlock()
			if paused {
				continue
			}
			o.runLoopIteration(ctx)
		}
	}
}

func (o *Orbiter) runLoopIteration(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { o.sweepExpiredPending(); return nil })
	g.Go(func() error { o.sweepIdleConnections(gctx); return nil })
	g.Go(func() error { o.sendDueKeepalives(gctx); return nil })
	_ = g.Wait()
	o.hooks.onLoopIteration(ctx)
}

// sweepExpiredPending discards PendingRequests older than
// PendingRequestsExpireAfter.
func (o *Orbiter) sweepExpiredPending() {
	if o.cfg.PendingRequestsExpireAfter <= 0 {
		return
	}
	now := o.cfg.TimeNow()
	for _, p := range o.pending.snapshot() {
		p.Lock.Lock()
		age := p.age(now)
		remoteID, opName := p.RemoteID, p.OperationName
		p.Lock.Unlock()
		if age > o.cfg.PendingRequestsExpireAfter {
			o.pending.remove(remoteID, opName)
			o.cfg.Metrics.incPendingExpired()
		}
	}
}

// sweepIdleConnections gracefully closes any Connection unused for longer
// than CloseConnectionIfUnusedAfter. A zero value disables the
// sweep entirely.
func (o *Orbiter) sweepIdleConnections(ctx context.Context) {
	if o.cfg.CloseConnectionIfUnusedAfter <= 0 {
		return
	}
	now := o.cfg.TimeNow()
	for _, c := range o.connections.snapshot() {
		if c.idleFor(now) > o.cfg.CloseConnectionIfUnusedAfter {
			_ = o.closeConnectionGraceful(ctx, c, nil)
		}
	}
}

// sendDueKeepalives sends a keepalive to every acquaintance whose deadline
// is within SendKeepaliveBeforeTimelimit.
func (o *Orbiter) sendDueKeepalives(ctx context.Context) {
	if o.cfg.SendKeepaliveBeforeTimelimit <= 0 {
		return
	}
	now := o.cfg.TimeNow()
	for _, a := range o.acq.snapshot() {
		deadline := a.LastKeepaliveSent.Add(o.cfg.ConsiderMeDeadAfter)
		if a.LastKeepaliveSent.IsZero() || now.Add(o.cfg.SendKeepaliveBeforeTimelimit).After(deadline) {
			_ = o.SendKeepalive(ctx, a.RemoteID)
		}
	}
}

// insertConnection records a freshly-confirmed Connection, emits the
// connections-opened metric, and fires newConnectionAddedEvent waiters.
func (o *Orbiter) insertConnection(c *Connection) bool {
	ok := o.connections.insert(c.RemoteID, c.OperationName, c)
	if ok {
		o.cfg.Metrics.incConnectionsOpened()
		o.notifyNewConnection()
	}
	return ok
}

// closeConnectionGraceful implements the ack-then-timeout-fallback close
// protocol: publish a [GracefulCloseConnectionMessage] carrying a fresh ack
// topic, subscribe to that ack topic, and arm a timeout via
// [newCloseTimeoutWatcher]. If the ack never arrives within
// GracefulCloseTimeout, the connection is torn down unilaterally anyway.
// The ack subscription is always torn down via defer, whether the ack
// arrives, the timeout fires, or ctx is canceled first.
func (o *Orbiter) closeConnectionGraceful(ctx context.Context, c *Connection, data []byte) error {
	if err := o.checkNotStopped(); err != nil {
		return err
	}
	if !o.connections.has(c.RemoteID, c.OperationName) {
		return ErrNoSuchConnection
	}
	ackTopic := closeAckTopic(c.OperationName, o.id, c.RemoteID)
	acked := make(chan struct{})
	if err := o.subscribe(ctx, ackTopic, func(ctx context.Context, topic string, payload []byte) {
		close(acked)
	}); err != nil {
		o.raiseIfConfigured(err)
		return err
	}
	defer o.unsubscribe(ctx, ackTopic)

	env := closeEnvelope{Graceful: &GracefulCloseConnectionMessage{
		FromID:        o.id,
		OperationName: c.OperationName,
		AckTopic:      ackTopic,
		Data:          data,
	}}
	payload, err := marshalMessage(env)
	if err != nil {
		return err
	}
	if err := o.publish(ctx, c.CloseToRemoteTopic, payload); err != nil {
		o.raiseIfConfigured(err)
		return err
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, o.cfg.GracefulCloseTimeout)
	defer cancelTimeout()
	timedOut := make(chan struct{})
	cancelWatch := newCloseTimeoutWatcher(timeoutCtx, func() { close(timedOut) })
	defer cancelWatch()
	select {
	case <-acked:
	case <-timedOut:
	}
	return o.finalizeConnectionClose(ctx, c)
}

// closeConnectionGraceless tears a Connection down unilaterally, without
// waiting for an acknowledgment.
func (o *Orbiter) closeConnectionGraceless(ctx context.Context, c *Connection, data []byte) error {
	if err := o.checkNotStopped(); err != nil {
		return err
	}
	env := closeEnvelope{Graceless: &GracelessCloseConnectionMessage{
		FromID:        o.id,
		OperationName: c.OperationName,
		Data:          data,
	}}
	payload, err := marshalMessage(env)
	if err == nil {
		o.raiseIfConfigured(o.publish(ctx, c.CloseToRemoteTopic, payload))
	}
	return o.finalizeConnectionClose(ctx, c)
}

// finalizeConnectionClose unsubscribes the topics this side actually
// subscribed for the connection and removes it from the registry. Which of
// InputTopic/OutputTopic was ours to subscribe is role-dependent (a Core
// subscribes OutputTopic and only publishes on InputTopic; a Plugin is the
// mirror image), so membership in subscribedOn — not the role — decides
// what gets unsubscribed here.
func (o *Orbiter) finalizeConnectionClose(ctx context.Context, c *Connection) error {
	if !o.connections.remove(c.RemoteID, c.OperationName) {
		return ErrNoSuchConnection
	}
	candidates := []string{c.IncomingCloseTopic, c.InputTopic, c.OutputTopic}
	o.mu.Lock()
	topics := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if t == "" {
			continue
		}
		if _, ok := o.subscribedOn[t]; ok {
			topics = append(topics, t)
		}
	}
	for _, t := range topics {
		delete(o.subscribedOn, t)
	}
	o.mu.Unlock()
	_ = o.bus.MultiUnsubscribe(ctx, topics, true)
	o.cfg.Metrics.incConnectionsClosed()
	return nil
}

// handleIncomingClose is subscribed on a Connection's IncomingCloseTopic.
// It dispatches a graceful close (reply with ack, then finalize) or a
// graceless one (finalize immediately), per whichever variant of
// [closeEnvelope] arrived.
func (o *Orbiter) handleIncomingClose(c *Connection) bus.Handler {
	return func(ctx context.Context, topic string, payload []byte) {
		var env closeEnvelope
		if err := unmarshalMessage(payload, &env); err != nil {
			o.log.LogProtocolMismatch("closeDecodeFailed", c.RemoteID, c.OperationName, err)
			return
		}
		if env.Graceful != nil {
			ack := CloseConnectionAckMessage{FromID: o.id, OperationName: c.OperationName}
			body, err := marshalMessage(ack)
			if err == nil {
				o.raiseIfConfigured(o.publish(ctx, env.Graceful.AckTopic, body))
			}
		}
		_ = o.finalizeConnectionClose(ctx, c)
	}
}
