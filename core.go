// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/orbitalis-framework/go-orbitalis/bus"
)

// Sink receives an output event published by a plugin on one of a Core's
// connections.
type Sink func(ctx context.Context, conn *Connection, payload []byte)

// Requirement is a Core's declaration of one operation it needs: the gating
// [Constraint], optional setup data handed to the plugin on Request, and an
// optional sink that overrides the operation's process-wide default sink.
type Requirement struct {
	Constraint       Constraint
	DefaultSetupData []byte
	OverrideSink     Sink
}

// Core discovers and binds compatible plugins for its declared
// [Requirement]s and tracks aggregate [ComplianceState]. Construct with [NewCore].
type Core struct {
	*Orbiter

	sm *stateMachine

	mu           sync.Mutex
	requirements map[string]Requirement
	defaultSinks map[string]Sink

	lastDiscoverSentAt time.Time
}

var _ roleHooks = (*Core)(nil)

// NewCore constructs a Core with the given requirements (keyed by
// operation name) and per-operation default sinks, communicating over
// transport, using cfg (or [NewConfig]'s defaults if cfg is nil).
func NewCore(transport bus.Bus, cfg *Config, requirements map[string]Requirement, defaultSinks map[string]Sink) *Core {
	c := &Core{
		sm:           newStateMachine(),
		requirements: make(map[string]Requirement, len(requirements)),
		defaultSinks: make(map[string]Sink, len(defaultSinks)),
	}
	for name, req := range requirements {
		c.requirements[name] = req
	}
	for name, sink := range defaultSinks {
		c.defaultSinks[name] = sink
	}
	c.Orbiter = newOrbiter(NewOrbiterID(), transport, cfg, c)
	return c
}

// OnEnter registers a hook to run whenever the Core's compliance state
// machine transitions into state.
func (c *Core) OnEnter(state ComplianceState, hook TransitionHook) {
	c.sm.OnEnter(state, hook)
}

// ComplianceState returns the Core's current compliance state.
func (c *Core) ComplianceState() ComplianceState {
	return c.sm.State()
}

// onStart implements [roleHooks]: subscribe this core's static offer and
// response topics, register a NOT_COMPLIANT entry hook that re-discovers,
// then emit the first Discover.
func (c *Core) onStart(ctx context.Context) error {
	if err := c.subscribe(ctx, offerTopic(c.id), c.handleOffer); err != nil {
		c.raiseIfConfigured(err)
		return err
	}
	if err := c.subscribe(ctx, responseTopic(c.id), c.handleResponse); err != nil {
		c.raiseIfConfigured(err)
		return err
	}
	c.OnEnter(StateNotCompliant, func(from, to ComplianceState) {
		_ = c.Discover(ctx)
	})
	c.updateCompliance()
	return c.Discover(ctx)
}

// onStop implements [roleHooks]: transition to STOPPED.
func (c *Core) onStop(ctx context.Context) error {
	c.sm.transition(StateStopped)
	return nil
}

// onLoopIteration implements [roleHooks]: re-emit Discover while
// NOT_COMPLIANT.
func (c *Core) onLoopIteration(ctx context.Context) {
	if c.sm.State() == StateNotCompliant {
		_ = c.Discover(ctx)
	}
}

// needs computes the residual [Need] for every requirement.
func (c *Core) needs() map[string]Need {
	c.mu.Lock()
	reqs := make(map[string]Requirement, len(c.requirements))
	for name, req := range c.requirements {
		reqs[name] = req
	}
	c.mu.Unlock()

	out := make(map[string]Need, len(reqs))
	for name, req := range reqs {
		connected := c.connections.remoteIDsForOperation(name)
		out[name] = deriveNeed(req.Constraint, connected)
	}
	return out
}

// Discover publishes a fresh [DiscoverMessage] for every requirement still
// worth advertising.
func (c *Core) Discover(ctx context.Context) error {
	if err := c.checkNotStopped(); err != nil {
		return err
	}
	needed := make(map[string]Constraint)
	for name, need := range c.needs() {
		if need.worthDiscovering() {
			needed[name] = need.Constraint
		}
	}
	if len(needed) == 0 {
		return nil
	}
	msg := DiscoverMessage{
		CoreID:                    c.id,
		NeededOperations:          needed,
		OfferTopic:                offerTopic(c.id),
		CoreKeepaliveTopic:        keepaliveTopic(c.id),
		CoreKeepaliveRequestTopic: keepaliveRequestTopic(c.id),
		ConsiderMeDeadAfterMillis: c.cfg.ConsiderMeDeadAfter.Milliseconds(),
	}
	body, err := marshalMessage(msg)
	if err != nil {
		return err
	}
	if err := c.publish(ctx, wellKnownDiscoverTopic, body); err != nil {
		c.raiseIfConfigured(err)
		return err
	}
	c.mu.Lock()
	c.lastDiscoverSentAt = c.cfg.TimeNow()
	c.mu.Unlock()
	c.cfg.Metrics.incDiscoversSent()
	return nil
}

// handleOffer implements the offer-evaluation receive side.
// Each offered operation is evaluated independently and concurrently via
// [errgroup.Group]-free fan-out (bounded by len(offered), never unbounded).
func (c *Core) handleOffer(ctx context.Context, topic string, payload []byte) {
	var msg OfferMessage
	if err := unmarshalMessage(payload, &msg); err != nil {
		c.log.LogProtocolMismatch("offerDecodeFailed", "", "", err)
		return
	}
	c.acq.touch(msg.PluginID, c.cfg.TimeNow())
	c.acq.update(msg.PluginID, func(a *Acquaintance) {
		a.OfferedOperations = msg.OfferedOperations
		a.ConsiderDeadAfter = time.Duration(msg.ConsideredDeadAfterMillis) * time.Millisecond
	})
	c.log.LogReceived("offerReceived", msg.PluginID, "")
	c.cfg.Metrics.incOffersReceived()

	var wg sync.WaitGroup
	for _, offered := range msg.OfferedOperations {
		wg.Add(1)
		go func(offered OfferedOperation) {
			defer wg.Done()
			c.evaluateOfferedOperation(ctx, msg, offered)
		}(offered)
	}
	wg.Wait()
}

func (c *Core) evaluateOfferedOperation(ctx context.Context, msg OfferMessage, offered OfferedOperation) {
	c.mu.Lock()
	req, required := c.requirements[offered.Name]
	c.mu.Unlock()
	if !required {
		return
	}
	need := deriveNeed(req.Constraint, c.connections.remoteIDsForOperation(offered.Name))
	accept := need.worthDiscovering() &&
		req.Constraint.ConstraintCompatible(msg.PluginID, offered.Input, offered.Output)

	if !accept {
		c.rejectOperation(ctx, msg.PluginID, offered.Name, msg.ReplyTopic)
		return
	}
	c.acceptOperation(ctx, msg, offered, req)
}

func (c *Core) rejectOperation(ctx context.Context, pluginID, operationName, replyTopic string) {
	env := replyEnvelope{Reject: &RejectOperationMessage{CoreID: c.id, OperationName: operationName}}
	body, err := marshalMessage(env)
	if err != nil {
		return
	}
	c.raiseIfConfigured(c.publish(ctx, replyTopic, body))
}

func (c *Core) acceptOperation(ctx context.Context, msg OfferMessage, offered OfferedOperation, req Requirement) {
	pr := &PendingRequest{
		OperationName: offered.Name,
		RemoteID:      msg.PluginID,
		CreatedAt:     c.cfg.TimeNow(),
		Input:         offered.Input,
		Output:        offered.Output,
	}
	if !c.pending.insert(msg.PluginID, offered.Name, pr) {
		c.log.LogProtocolMismatch("acceptAlreadyBound", msg.PluginID, offered.Name, ErrAlreadyBound)
		return
	}

	responseTop := responseTopic(c.id)
	pr.Lock.Lock()
	incomingClose := closeTopic(offered.Name, c.id, msg.PluginID)
	pr.IncomingCloseTopic = incomingClose
	var outputTopicPtr *string
	if !offered.Output.IsEmpty() {
		ot := outputTopic(offered.Name, c.id, msg.PluginID)
		pr.OutputTopic = ot
		outputTopicPtr = &ot
	}
	pr.Lock.Unlock()

	request := RequestOperationMessage{
		CoreID:             c.id,
		OperationName:      offered.Name,
		ResponseTopic:      responseTop,
		OutputTopic:        outputTopicPtr,
		CoreSideCloseTopic: incomingClose,
		SetupData:          req.DefaultSetupData,
	}
	env := replyEnvelope{Request: &request}
	body, err := marshalMessage(env)
	if err != nil {
		c.pending.remove(msg.PluginID, offered.Name)
		return
	}
	if err := c.publish(ctx, msg.ReplyTopic, body); err != nil {
		c.pending.remove(msg.PluginID, offered.Name)
		c.raiseIfConfigured(err)
		return
	}
	c.log.LogSent("requestSent", msg.PluginID, offered.Name)
	c.cfg.Metrics.incRequestsSent()
}

// handleResponse implements Confirm/NoLongerAvailable handling.
func (c *Core) handleResponse(ctx context.Context, topic string, payload []byte) {
	var env responseEnvelope
	if err := unmarshalMessage(payload, &env); err != nil {
		c.log.LogProtocolMismatch("responseDecodeFailed", "", "", err)
		return
	}
	switch {
	case env.Confirm != nil:
		c.handleConfirm(ctx, env.Confirm)
	case env.NoLongerAvailable != nil:
		c.pending.remove(env.NoLongerAvailable.PluginID, env.NoLongerAvailable.OperationName)
		c.log.LogReceived("noLongerAvailableReceived", env.NoLongerAvailable.PluginID, env.NoLongerAvailable.OperationName)
		c.updateCompliance()
	default:
		c.log.LogProtocolMismatch("responseEnvelopeEmpty", "", "", ErrIncompatibleSchema)
	}
}

func (c *Core) handleConfirm(ctx context.Context, msg *ConfirmConnectionMessage) {
	pr, ok := c.pending.get(msg.PluginID, msg.OperationName)
	if !ok {
		c.log.LogProtocolMismatch("confirmWithoutPending", msg.PluginID, msg.OperationName, ErrNoSuchPending)
		return
	}
	pr.Lock.Lock()
	pr.InputTopic = msg.OperationInputTopic
	pr.CloseToRemoteTopic = msg.PluginSideCloseTopic
	now := c.cfg.TimeNow()
	conn := &Connection{
		OperationName:      pr.OperationName,
		RemoteID:           pr.RemoteID,
		Input:              pr.Input,
		Output:             pr.Output,
		InputTopic:         pr.InputTopic,
		OutputTopic:        pr.OutputTopic,
		IncomingCloseTopic: pr.IncomingCloseTopic,
		CloseToRemoteTopic: pr.CloseToRemoteTopic,
		CreatedAt:          now,
		LastUse:            now,
	}
	pr.Lock.Unlock()

	c.pending.remove(msg.PluginID, msg.OperationName)
	if !c.insertConnection(conn) {
		return
	}
	if err := c.subscribe(ctx, conn.IncomingCloseTopic, c.handleIncomingClose(conn)); err != nil {
		c.raiseIfConfigured(err)
		return
	}
	if conn.hasOutput() {
		if err := c.subscribe(ctx, conn.OutputTopic, c.handleOutput(conn)); err != nil {
			c.raiseIfConfigured(err)
			return
		}
	}
	c.log.LogReceived("confirmReceived", msg.PluginID, msg.OperationName)
	c.updateCompliance()
}

// handleOutput dispatches a plugin's published output to the
// requirement's override sink, falling back to the operation's default
// sink.
func (c *Core) handleOutput(conn *Connection) bus.Handler {
	return func(ctx context.Context, topic string, payload []byte) {
		conn.touch(c.cfg.TimeNow())
		c.mu.Lock()
		req := c.requirements[conn.OperationName]
		sink := req.OverrideSink
		if sink == nil {
			sink = c.defaultSinks[conn.OperationName]
		}
		c.mu.Unlock()
		if sink != nil {
			sink(ctx, conn, payload)
		}
	}
}

// updateCompliance recomputes compliance and drives the
// [stateMachine] accordingly.
func (c *Core) updateCompliance() {
	if c.sm.State() == StateStopped {
		return
	}
	if c.isCompliant() {
		c.sm.transition(StateCompliant)
	} else {
		c.sm.transition(StateNotCompliant)
	}
}

func (c *Core) isCompliant() bool {
	c.mu.Lock()
	reqs := make(map[string]Requirement, len(c.requirements))
	for name, req := range c.requirements {
		reqs[name] = req
	}
	c.mu.Unlock()

	for name, req := range reqs {
		connected := c.connections.remoteIDsForOperation(name)
		if len(connected) < req.Constraint.Minimum {
			return false
		}
		for _, mandatory := range req.Constraint.Mandatory {
			found := false
			for _, id := range connected {
				if id == mandatory {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// compatibleConnections returns this core's connections for operationName
// whose input schema accepts payload (nil payload requires SupportEmpty).
func (c *Core) compatibleConnections(operationName string, payloadSchema *SchemaSpec) []*Connection {
	all := c.connections.snapshot()
	out := make([]*Connection, 0, len(all))
	for _, conn := range all {
		if conn.OperationName != operationName {
			continue
		}
		if payloadSchema == nil {
			if !conn.Input.SupportEmpty() {
				continue
			}
		} else if !conn.Input.IsCompatible(*payloadSchema, CompatibilityOptions{UndefinedIsCompatible: true}) {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// ErrNoCompatibleConnection is returned by the execute modes when no
// connection matches; callers that want a no-op-with-a-warning behavior
// can safely ignore it.
var ErrNoCompatibleConnection = errors.New("orbitalis: no compatible connection")

// ExecuteUsingPlugin publishes payload to the single connection for
// (operationName, pluginID). Fails if the connection does not
// exist or payload is schema-incompatible with its input.
func (c *Core) ExecuteUsingPlugin(ctx context.Context, operationName, pluginID string, payload []byte, payloadSchema *SchemaSpec) error {
	if err := c.checkNotStopped(); err != nil {
		return err
	}
	conn, ok := c.connections.get(pluginID, operationName)
	if !ok {
		c.log.LogProtocolMismatch("executeNoSuchConnection", pluginID, operationName, ErrNoSuchConnection)
		return ErrNoSuchConnection
	}
	if !schemaAllows(conn, payloadSchema) {
		c.log.LogProtocolMismatch("executeSchemaIncompatible", pluginID, operationName, ErrIncompatibleSchema)
		return ErrIncompatibleSchema
	}
	conn.touch(c.cfg.TimeNow())
	err := c.publish(ctx, conn.InputTopic, payload)
	c.raiseIfConfigured(err)
	return err
}

// ExecuteSendingAny publishes payload to one connection chosen at random
// among the compatible subset for operationName. A no-op returning
// [ErrNoCompatibleConnection] (logged at WARN) if none match.
func (c *Core) ExecuteSendingAny(ctx context.Context, operationName string, payload []byte, payloadSchema *SchemaSpec) error {
	if err := c.checkNotStopped(); err != nil {
		return err
	}
	candidates := c.compatibleConnections(operationName, payloadSchema)
	if len(candidates) == 0 {
		c.log.LogProtocolMismatch("executeSendingAnyNoMatch", "", operationName, ErrNoCompatibleConnection)
		return ErrNoCompatibleConnection
	}
	conn := candidates[rand.N(len(candidates))]
	conn.touch(c.cfg.TimeNow())
	err := c.publish(ctx, conn.InputTopic, payload)
	c.raiseIfConfigured(err)
	return err
}

// ExecuteSendingAll publishes payload to every compatible connection for
// operationName. Returns the number of connections
// published to; zero is a no-op, logged at WARN, never an error.
func (c *Core) ExecuteSendingAll(ctx context.Context, operationName string, payload []byte, payloadSchema *SchemaSpec) int {
	if err := c.checkNotStopped(); err != nil {
		c.log.LogProtocolMismatch("executeSendingAllStopped", "", operationName, err)
		return 0
	}
	candidates := c.compatibleConnections(operationName, payloadSchema)
	if len(candidates) == 0 {
		c.log.LogProtocolMismatch("executeSendingAllNoMatch", "", operationName, ErrNoCompatibleConnection)
		return 0
	}
	now := c.cfg.TimeNow()
	sent := 0
	for _, conn := range candidates {
		if err := c.publish(ctx, conn.InputTopic, payload); err == nil {
			conn.touch(now)
			sent++
		} else {
			c.raiseIfConfigured(err)
		}
	}
	return sent
}

// ExecuteDistributed publishes each payload in payloads to one compatible
// connection, round-robin over the connections compatible with
// payloadSchema. If none is compatible, nothing is sent and a warning is
// logged. Returns the number of payloads delivered.
func (c *Core) ExecuteDistributed(ctx context.Context, operationName string, payloads [][]byte, payloadSchema *SchemaSpec) int {
	if err := c.checkNotStopped(); err != nil {
		c.log.LogProtocolMismatch("executeDistributedStopped", "", operationName, err)
		return 0
	}
	candidates := c.compatibleConnections(operationName, payloadSchema)
	if len(candidates) == 0 {
		c.log.LogProtocolMismatch("executeDistributedNoMatch", "", operationName, ErrNoCompatibleConnection)
		return 0
	}
	now := c.cfg.TimeNow()
	sent := 0
	for i, payload := range payloads {
		conn := candidates[i%len(candidates)]
		if err := c.publish(ctx, conn.InputTopic, payload); err == nil {
			conn.touch(now)
			sent++
		} else {
			c.raiseIfConfigured(err)
		}
	}
	return sent
}

// ExecuteDynamically picks, for each payload, whichever connection for
// operationName has an input schema compatible with that specific
// payload's schema, skipping payloads with no match.
func (c *Core) ExecuteDynamically(ctx context.Context, operationName string, payloads []SchemaTaggedPayload) int {
	if err := c.checkNotStopped(); err != nil {
		c.log.LogProtocolMismatch("executeDynamicallyStopped", "", operationName, err)
		return 0
	}
	now := c.cfg.TimeNow()
	sent := 0
	for _, p := range payloads {
		schema := p.Schema
		candidates := c.compatibleConnections(operationName, &schema)
		if len(candidates) == 0 {
			c.log.LogProtocolMismatch("executeDynamicallyNoMatch", "", operationName, ErrNoCompatibleConnection)
			continue
		}
		conn := candidates[rand.N(len(candidates))]
		if err := c.publish(ctx, conn.InputTopic, p.Payload); err == nil {
			conn.touch(now)
			sent++
		} else {
			c.raiseIfConfigured(err)
		}
	}
	return sent
}

// SchemaTaggedPayload pairs a payload with the schema fingerprint it was
// encoded with, for [Core.ExecuteDynamically].
type SchemaTaggedPayload struct {
	Schema  SchemaSpec
	Payload []byte
}

func schemaAllows(conn *Connection, payloadSchema *SchemaSpec) bool {
	if payloadSchema == nil {
		return conn.Input.SupportEmpty()
	}
	return conn.Input.IsCompatible(*payloadSchema, CompatibilityOptions{UndefinedIsCompatible: true})
}

// CloseConnection closes the connection for (pluginID, operationName),
// gracefully unless graceless is true.
func (c *Core) CloseConnection(ctx context.Context, pluginID, operationName string, graceless bool, data []byte) error {
	if err := c.checkNotStopped(); err != nil {
		return err
	}
	conn, ok := c.connections.get(pluginID, operationName)
	if !ok {
		return ErrNoSuchConnection
	}
	if graceless {
		return c.closeConnectionGraceless(ctx, conn, data)
	}
	return c.closeConnectionGraceful(ctx, conn, data)
}
