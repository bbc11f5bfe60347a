// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/orbitalis-framework/go-orbitalis/bus"
)

// Setup is an optional per-operation hook run after the PendingRequest's
// topics are allocated and before the Connection is created and confirmed
// to the core. Returning an error
// aborts the confirmation: the plugin responds with
// [OperationNoLongerAvailableMessage] instead and the Connection is never
// inserted.
type Setup func(ctx context.Context, coreID string, setupData []byte) error

// Operation is a capability a [Plugin] offers: a name, the SchemaSpecs it
// accepts/produces, the concrete [Handler] that processes input, the
// [Policy] gating which cores may bind it, and an optional [Setup] hook.
type Operation struct {
	Name    string
	Input   SchemaSpec
	Output  SchemaSpec
	Handler Handler
	Policy  Policy
	Setup   Setup
}

// Plugin offers [Operation]s to the network and lends them to compatible
// cores. Construct with [NewPlugin] or [NewPluginBuilder].
type Plugin struct {
	*Orbiter

	mu         sync.Mutex
	operations map[string]Operation
}

var _ roleHooks = (*Plugin)(nil)

// NewPlugin constructs a Plugin offering operations, communicating over
// transport, using cfg (or [NewConfig]'s defaults if cfg is nil).
func NewPlugin(transport bus.Bus, cfg *Config, operations ...Operation) *Plugin {
	p := &Plugin{operations: make(map[string]Operation, len(operations))}
	for _, op := range operations {
		p.operations[op.Name] = op
	}
	p.Orbiter = newOrbiter(NewOrbiterID(), transport, cfg, p)
	return p
}

// PluginBuilder incrementally assembles a [Plugin]. The zero value is usable.
type PluginBuilder struct {
	operations map[string]Operation
}

// NewPluginBuilder returns an empty [*PluginBuilder].
func NewPluginBuilder() *PluginBuilder {
	return &PluginBuilder{operations: make(map[string]Operation)}
}

// WithOperation registers or replaces op by name. A later call with the
// same Name entirely replaces the earlier registration: builders never
// merge two registrations for the same operation name.
func (b *PluginBuilder) WithOperation(op Operation) *PluginBuilder {
	if b.operations == nil {
		b.operations = make(map[string]Operation)
	}
	b.operations[op.Name] = op
	return b
}

// Build constructs the [*Plugin].
func (b *PluginBuilder) Build(transport bus.Bus, cfg *Config) *Plugin {
	ops := make([]Operation, 0, len(b.operations))
	for _, op := range maps.Values(b.operations) {
		ops = append(ops, op)
	}
	return NewPlugin(transport, cfg, ops...)
}

// onStart implements [roleHooks]: subscribe the plugin's static reply
// topic, where cores accept or reject offers.
func (p *Plugin) onStart(ctx context.Context) error {
	if err := p.subscribe(ctx, wellKnownDiscoverTopic, p.handleDiscover); err != nil {
		p.raiseIfConfigured(err)
		return err
	}
	if err := p.subscribe(ctx, replyTopic(p.id), p.handleReply); err != nil {
		p.raiseIfConfigured(err)
		return err
	}
	return nil
}

// onStop implements [roleHooks]: no plugin-specific teardown beyond what
// Orbiter.Stop already does (unsubscribing every tracked topic).
func (p *Plugin) onStop(ctx context.Context) error {
	return nil
}

// onLoopIteration implements [roleHooks]: a plugin has no periodic
// behavior of its own beyond the base sweeps.
func (p *Plugin) onLoopIteration(ctx context.Context) {}

// canLend reports whether operation opName may currently be lent to
// coreID: the operation exists, its Policy allows coreID, and lending one
// more connection would not exceed Policy.Maximum.
func (p *Plugin) canLend(opName, coreID string) (Operation, bool) {
	p.mu.Lock()
	op, ok := p.operations[opName]
	p.mu.Unlock()
	if !ok {
		return Operation{}, false
	}
	if !op.Policy.IsCompatible(coreID) {
		p.log.LogProtocolMismatch("policyRejected", coreID, opName, ErrPolicyRejected)
		return Operation{}, false
	}
	if max, capped := op.Policy.Maximum(); capped {
		inUse := p.connections.countByOperation(opName) + p.pending.countByOperation(opName)
		if inUse >= max {
			p.log.LogProtocolMismatch("policyRejected", coreID, opName, ErrPolicyRejected)
			return Operation{}, false
		}
	}
	return op, true
}

// handleDiscover implements the discover-evaluation receive side.
func (p *Plugin) handleDiscover(ctx context.Context, topic string, payload []byte) {
	var msg DiscoverMessage
	if err := unmarshalMessage(payload, &msg); err != nil {
		p.log.LogProtocolMismatch("discoverDecodeFailed", "", "", err)
		return
	}
	p.acq.touch(msg.CoreID, p.cfg.TimeNow())
	p.acq.update(msg.CoreID, func(a *Acquaintance) {
		a.NeededOperations = msg.NeededOperations
		a.ConsiderDeadAfter = time.Duration(msg.ConsiderMeDeadAfterMillis) * time.Millisecond
	})

	var offered []OfferedOperation
	for name, constraint := range msg.NeededOperations {
		op, ok := p.canLend(name, msg.CoreID)
		if !ok {
			continue
		}
		if !constraint.ConstraintCompatible(msg.CoreID, op.Input, op.Output) {
			continue
		}
		pr := &PendingRequest{
			OperationName: name,
			RemoteID:      msg.CoreID,
			CreatedAt:     p.cfg.TimeNow(),
			Input:         op.Input,
			Output:        op.Output,
		}
		if !p.pending.insert(msg.CoreID, name, pr) {
			p.log.LogProtocolMismatch("discoverAlreadyBound", msg.CoreID, name, ErrAlreadyBound)
			continue
		}
		offered = append(offered, OfferedOperation{Name: op.Name, Input: op.Input, Output: op.Output})
	}
	if len(offered) == 0 {
		return
	}

	out := OfferMessage{
		PluginID:                    p.id,
		OfferedOperations:           offered,
		ReplyTopic:                  replyTopic(p.id),
		PluginKeepaliveTopic:        keepaliveTopic(p.id),
		PluginKeepaliveRequestTopic: keepaliveRequestTopic(p.id),
		ConsideredDeadAfterMillis:   p.cfg.ConsiderMeDeadAfter.Milliseconds(),
	}
	body, err := marshalMessage(out)
	if err != nil {
		return
	}
	if err := p.publish(ctx, msg.OfferTopic, body); err != nil {
		p.raiseIfConfigured(err)
		return
	}
	p.log.LogSent("offerSent", msg.CoreID, "")
	p.cfg.Metrics.incOffersSent()
}

// handleReply implements the receive side of a core's accept/reject
// decision.
func (p *Plugin) handleReply(ctx context.Context, topic string, payload []byte) {
	var env replyEnvelope
	if err := unmarshalMessage(payload, &env); err != nil {
		p.log.LogProtocolMismatch("replyDecodeFailed", "", "", err)
		return
	}
	switch {
	case env.Request != nil:
		p.handleRequestOperation(ctx, env.Request)
	case env.Reject != nil:
		p.pending.remove(env.Reject.CoreID, env.Reject.OperationName)
		p.log.LogReceived("rejectReceived", env.Reject.CoreID, env.Reject.OperationName)
	default:
		p.log.LogProtocolMismatch("replyEnvelopeEmpty", "", "", ErrIncompatibleSchema)
	}
}

func (p *Plugin) handleRequestOperation(ctx context.Context, msg *RequestOperationMessage) {
	p.log.LogReceived("requestReceived", msg.CoreID, msg.OperationName)
	pr, ok := p.pending.get(msg.CoreID, msg.OperationName)
	if !ok {
		p.replyNoLongerAvailable(ctx, msg.ResponseTopic, msg.OperationName)
		return
	}

	pr.Lock.Lock()
	op, stillLendable := p.canLend(msg.OperationName, msg.CoreID)
	if !stillLendable {
		pr.Lock.Unlock()
		p.pending.remove(msg.CoreID, msg.OperationName)
		p.replyNoLongerAvailable(ctx, msg.ResponseTopic, msg.OperationName)
		return
	}
	pr.InputTopic = inputTopic(msg.OperationName, msg.CoreID, p.id)
	if msg.OutputTopic != nil {
		pr.OutputTopic = *msg.OutputTopic
	}
	pr.CloseToRemoteTopic = msg.CoreSideCloseTopic
	pr.IncomingCloseTopic = closeTopic(msg.OperationName, p.id, msg.CoreID)
	pr.Lock.Unlock()

	if op.Setup != nil {
		if err := op.Setup(ctx, msg.CoreID, msg.SetupData); err != nil {
			p.pending.remove(msg.CoreID, msg.OperationName)
			p.log.LogProtocolMismatch("setupFailed", msg.CoreID, msg.OperationName, err)
			p.replyNoLongerAvailable(ctx, msg.ResponseTopic, msg.OperationName)
			return
		}
	}

	now := p.cfg.TimeNow()
	conn := &Connection{
		OperationName:      msg.OperationName,
		RemoteID:           msg.CoreID,
		Input:              pr.Input,
		Output:             pr.Output,
		InputTopic:         pr.InputTopic,
		OutputTopic:        pr.OutputTopic,
		IncomingCloseTopic: pr.IncomingCloseTopic,
		CloseToRemoteTopic: pr.CloseToRemoteTopic,
		CreatedAt:          now,
		LastUse:            now,
	}
	p.pending.remove(msg.CoreID, msg.OperationName)
	if !p.insertConnection(conn) {
		p.replyNoLongerAvailable(ctx, msg.ResponseTopic, msg.OperationName)
		return
	}
	if err := p.subscribe(ctx, conn.InputTopic, p.handleInput(conn)); err != nil {
		p.raiseIfConfigured(err)
		return
	}
	if err := p.subscribe(ctx, conn.IncomingCloseTopic, p.handleIncomingClose(conn)); err != nil {
		p.raiseIfConfigured(err)
		return
	}

	confirm := ConfirmConnectionMessage{
		PluginID:             p.id,
		OperationName:        msg.OperationName,
		OperationInputTopic:  conn.InputTopic,
		PluginSideCloseTopic: conn.IncomingCloseTopic,
	}
	body, err := marshalMessage(responseEnvelope{Confirm: &confirm})
	if err != nil {
		return
	}
	if err := p.publish(ctx, msg.ResponseTopic, body); err != nil {
		p.raiseIfConfigured(err)
		return
	}
	p.log.LogSent("confirmSent", msg.CoreID, msg.OperationName)
}

func (p *Plugin) replyNoLongerAvailable(ctx context.Context, responseTopic, operationName string) {
	msg := OperationNoLongerAvailableMessage{PluginID: p.id, OperationName: operationName}
	body, err := marshalMessage(responseEnvelope{NoLongerAvailable: &msg})
	if err != nil {
		return
	}
	p.raiseIfConfigured(p.publish(ctx, responseTopic, body))
}

// handleInput dispatches an inbound payload to conn's Operation.Handler and
// publishes the result, if any, to conn.OutputTopic.
func (p *Plugin) handleInput(conn *Connection) bus.Handler {
	return func(ctx context.Context, topic string, payload []byte) {
		conn.touch(p.cfg.TimeNow())
		p.mu.Lock()
		op, ok := p.operations[conn.OperationName]
		p.mu.Unlock()
		if !ok {
			return
		}
		out, err := op.Handler.Call(ctx, payload)
		if err != nil {
			p.log.LogProtocolMismatch("handlerError", conn.RemoteID, conn.OperationName, err)
			return
		}
		if conn.hasOutput() && out != nil {
			p.raiseIfConfigured(p.publish(ctx, conn.OutputTopic, out))
		}
	}
}

// PublishOutput lets a [Handler] emit zero, or more than one, output event
// for conn from outside the synchronous return value of Call.
func (p *Plugin) PublishOutput(ctx context.Context, conn *Connection, payload []byte) error {
	if err := p.checkNotStopped(); err != nil {
		return err
	}
	if !conn.hasOutput() {
		return ErrIncompatibleSchema
	}
	err := p.publish(ctx, conn.OutputTopic, payload)
	p.raiseIfConfigured(err)
	return err
}

// CloseConnection closes conn, gracefully (awaiting an ack, with a
// timeout fallback) unless graceless is true.
func (p *Plugin) CloseConnection(ctx context.Context, conn *Connection, graceless bool, data []byte) error {
	if err := p.checkNotStopped(); err != nil {
		return err
	}
	if graceless {
		return p.closeConnectionGraceless(ctx, conn, data)
	}
	return p.closeConnectionGraceful(ctx, conn, data)
}
