// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"context"
	"testing"
	"time"

	"github.com/orbitalis-framework/go-orbitalis/bus/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T, reqs map[string]Requirement) (*Core, *local.Bus) {
	t.Helper()
	b := local.New()
	c := NewCore(b, NewConfig(), reqs, nil)
	return c, b
}

func TestCoreDiscoverSkipsSatisfiedRequirements(t *testing.T) {
	core, b := newTestCore(t, map[string]Requirement{
		"turn_on": {Constraint: NewConstraint(1, intPtr(1), nil,
			[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil)},
	})
	ctx := context.Background()

	core.connections.insert("plugin-a", "turn_on", &Connection{RemoteID: "plugin-a", OperationName: "turn_on"})

	var published bool
	require.NoError(t, b.Subscribe(ctx, wellKnownDiscoverTopic, func(ctx context.Context, topic string, payload []byte) {
		published = true
	}))

	require.NoError(t, core.Discover(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, published, "a fully-satisfied requirement should not be re-advertised")
}

func TestCoreRejectOperationPublishesReject(t *testing.T) {
	core, b := newTestCore(t, map[string]Requirement{
		"turn_on": {Constraint: NewConstraint(0, nil, nil,
			[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil)},
	})
	ctx := context.Background()

	gotReject := make(chan replyEnvelope, 1)
	require.NoError(t, b.Subscribe(ctx, "plugin-reply-topic", func(ctx context.Context, topic string, payload []byte) {
		var env replyEnvelope
		_ = unmarshalMessage(payload, &env)
		gotReject <- env
	}))

	// An incompatible output schema should be rejected.
	msg := OfferMessage{PluginID: "plugin-a", ReplyTopic: "plugin-reply-topic"}
	offered := OfferedOperation{Name: "turn_on", Input: turnOnInput(), Output: ExplicitSchema(`"bytes"`)}
	core.evaluateOfferedOperation(ctx, msg, offered)

	select {
	case env := <-gotReject:
		require.NotNil(t, env.Reject)
		assert.Equal(t, "turn_on", env.Reject.OperationName)
	case <-time.After(time.Second):
		t.Fatal("reject was never published")
	}
}

func TestCoreAcceptOperationPublishesRequestAndReservesPending(t *testing.T) {
	core, b := newTestCore(t, map[string]Requirement{
		"turn_on": {Constraint: NewConstraint(0, nil, nil,
			[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil)},
	})
	ctx := context.Background()

	gotRequest := make(chan replyEnvelope, 1)
	require.NoError(t, b.Subscribe(ctx, "plugin-reply-topic", func(ctx context.Context, topic string, payload []byte) {
		var env replyEnvelope
		_ = unmarshalMessage(payload, &env)
		gotRequest <- env
	}))

	msg := OfferMessage{PluginID: "plugin-a", ReplyTopic: "plugin-reply-topic"}
	offered := OfferedOperation{Name: "turn_on", Input: turnOnInput(), Output: turnOnOutput()}
	core.evaluateOfferedOperation(ctx, msg, offered)

	assert.True(t, core.pending.has("plugin-a", "turn_on"))
	select {
	case env := <-gotRequest:
		require.NotNil(t, env.Request)
		assert.Equal(t, "turn_on", env.Request.OperationName)
	case <-time.After(time.Second):
		t.Fatal("request was never published")
	}
}

func TestCoreHandleConfirmPromotesPendingToConnection(t *testing.T) {
	core, _ := newTestCore(t, nil)
	ctx := context.Background()

	pr := &PendingRequest{RemoteID: "plugin-a", OperationName: "turn_on", CreatedAt: time.Now(), Input: turnOnInput(), Output: turnOnOutput()}
	core.pending.insert("plugin-a", "turn_on", pr)

	core.handleConfirm(ctx, &ConfirmConnectionMessage{
		PluginID:             "plugin-a",
		OperationName:        "turn_on",
		OperationInputTopic:  "input-topic",
		PluginSideCloseTopic: "close-topic",
	})

	assert.False(t, core.pending.has("plugin-a", "turn_on"))
	conn, ok := core.connections.get("plugin-a", "turn_on")
	require.True(t, ok)
	assert.Equal(t, "input-topic", conn.InputTopic)
}

func TestCoreHandleResponseNoLongerAvailableClearsPending(t *testing.T) {
	core, _ := newTestCore(t, map[string]Requirement{
		"turn_on": {Constraint: NewConstraint(1, intPtr(1), nil,
			[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil)},
	})
	ctx := context.Background()
	core.pending.insert("plugin-a", "turn_on", &PendingRequest{RemoteID: "plugin-a", OperationName: "turn_on"})

	env := responseEnvelope{NoLongerAvailable: &OperationNoLongerAvailableMessage{PluginID: "plugin-a", OperationName: "turn_on"}}
	body, err := marshalMessage(env)
	require.NoError(t, err)
	core.handleResponse(ctx, "", body)

	assert.False(t, core.pending.has("plugin-a", "turn_on"))
}

func TestCoreExecuteUsingPluginNoSuchConnection(t *testing.T) {
	core, _ := newTestCore(t, nil)
	err := core.ExecuteUsingPlugin(context.Background(), "turn_on", "plugin-a", []byte("42"), nil)
	assert.ErrorIs(t, err, ErrNoSuchConnection)
}

func TestCoreExecuteUsingPluginSchemaIncompatible(t *testing.T) {
	core, _ := newTestCore(t, nil)
	conn := &Connection{RemoteID: "plugin-a", OperationName: "turn_on", Input: ExplicitSchema(`"int64"`), InputTopic: "in"}
	core.connections.insert(conn.RemoteID, conn.OperationName, conn)

	badSchema := ExplicitSchema(`"bytes"`)
	err := core.ExecuteUsingPlugin(context.Background(), "turn_on", "plugin-a", []byte("x"), &badSchema)
	assert.ErrorIs(t, err, ErrIncompatibleSchema)
}

func TestCoreExecuteSendingAnyNoMatch(t *testing.T) {
	core, _ := newTestCore(t, nil)
	err := core.ExecuteSendingAny(context.Background(), "turn_on", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrNoCompatibleConnection)
}

func TestCoreExecuteSendingAllAndDistributed(t *testing.T) {
	core, b := newTestCore(t, nil)
	ctx := context.Background()

	received := make(chan string, 10)
	for _, id := range []string{"plugin-a", "plugin-b", "plugin-c"} {
		topic := "in." + id
		require.NoError(t, b.Subscribe(ctx, topic, func(ctx context.Context, topic string, payload []byte) {
			received <- string(payload)
		}))
		core.connections.insert(id, "turn_on", &Connection{
			RemoteID: id, OperationName: "turn_on", Input: UndefinedSchema(), InputTopic: topic,
		})
	}

	sentAll := core.ExecuteSendingAll(ctx, "turn_on", []byte("broadcast"), nil)
	assert.Equal(t, 3, sentAll)
	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, "broadcast", msg)
		case <-time.After(time.Second):
			t.Fatal("ExecuteSendingAll did not reach all connections")
		}
	}

	sentDist := core.ExecuteDistributed(ctx, "turn_on", [][]byte{[]byte("a"), []byte("b")}, nil)
	assert.Equal(t, 2, sentDist)
}

func TestCoreCloseConnectionNoSuchConnection(t *testing.T) {
	core, _ := newTestCore(t, nil)
	err := core.CloseConnection(context.Background(), "plugin-a", "turn_on", true, nil)
	assert.ErrorIs(t, err, ErrNoSuchConnection)
}

func TestCoreIsCompliantAccountsForMandatory(t *testing.T) {
	core, _ := newTestCore(t, map[string]Requirement{
		"turn_on": {Constraint: NewConstraint(0, nil, []string{"plugin-a"},
			[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil)},
	})
	assert.False(t, core.isCompliant())

	core.connections.insert("plugin-a", "turn_on", &Connection{RemoteID: "plugin-a", OperationName: "turn_on"})
	assert.True(t, core.isCompliant())
}
