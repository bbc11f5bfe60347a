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

// awaitCondition polls cond until it returns true or the deadline passes,
// failing the test otherwise.
func awaitCondition(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func turnOnInput() SchemaSpec  { return ExplicitSchema(`"int64"`) }
func turnOnOutput() SchemaSpec { return ExplicitSchema(`"string"`) }

// TestScenarioSingleCoreSinglePluginHappyPath wires one Core requiring one
// "turn_on" operation against one Plugin offering exactly that operation,
// over a shared in-process bus, and drives the handshake to a confirmed
// Connection on both sides.
func TestScenarioSingleCoreSinglePluginHappyPath(t *testing.T) {
	ctx := context.Background()
	shared := local.New()

	var received []byte
	sink := func(ctx context.Context, conn *Connection, payload []byte) {
		received = payload
	}

	core := NewCore(shared, NewConfig(), map[string]Requirement{
		"turn_on": {
			Constraint: NewConstraint(1, intPtr(1), nil,
				[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil),
		},
	}, map[string]Sink{"turn_on": sink})

	plugin := NewPlugin(shared, NewConfig(), Operation{
		Name:   "turn_on",
		Input:  turnOnInput(),
		Output: turnOnOutput(),
		Handler: HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) {
			return []byte(`"ack"`), nil
		}),
		Policy: NewPolicy(nil, nil, nil),
	})

	require.NoError(t, plugin.Start(ctx))
	require.NoError(t, core.Start(ctx))
	defer core.Stop(ctx)
	defer plugin.Stop(ctx)

	awaitCondition(t, func() bool {
		return core.ComplianceState() == StateCompliant
	}, "core never became compliant")

	coreConns := core.RetrieveConnections(ConnectionFilter{OperationName: "turn_on"})
	require.Len(t, coreConns, 1)
	pluginConns := plugin.RetrieveConnections(ConnectionFilter{OperationName: "turn_on"})
	require.Len(t, pluginConns, 1)

	inputSchema := turnOnInput()
	require.NoError(t, core.ExecuteUsingPlugin(ctx, "turn_on", plugin.ID(), []byte("42"), &inputSchema))

	awaitCondition(t, func() bool {
		return received != nil
	}, "sink never received output")
	assert.Equal(t, `"ack"`, string(received))
}

// TestScenarioDynamicInputDispatch confirms a plugin that is offered for a
// schema-specific operation, and verifies ExecuteDynamically routes each
// payload only to the connection whose Input schema matches.
func TestScenarioDynamicInputDispatch(t *testing.T) {
	ctx := context.Background()
	shared := local.New()

	var intSeen, stringSeen [][]byte
	core := NewCore(shared, NewConfig(), map[string]Requirement{
		"vault": {
			Constraint: NewConstraint(0, nil, nil,
				[]SchemaSpec{ExplicitSchema(`"int64"`), ExplicitSchema(`"string"`)},
				[]SchemaSpec{EmptySchema()}, nil, nil),
		},
	}, nil)

	intPlugin := NewPlugin(shared, NewConfig(), Operation{
		Name:   "vault",
		Input:  ExplicitSchema(`"int64"`),
		Output: EmptySchema(),
		Handler: HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) {
			intSeen = append(intSeen, append([]byte(nil), input...))
			return nil, nil
		}),
		Policy: NewPolicy(nil, nil, nil),
	})
	stringPlugin := NewPlugin(shared, NewConfig(), Operation{
		Name:   "vault",
		Input:  ExplicitSchema(`"string"`),
		Output: EmptySchema(),
		Handler: HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) {
			stringSeen = append(stringSeen, append([]byte(nil), input...))
			return nil, nil
		}),
		Policy: NewPolicy(nil, nil, nil),
	})

	require.NoError(t, intPlugin.Start(ctx))
	require.NoError(t, stringPlugin.Start(ctx))
	require.NoError(t, core.Start(ctx))
	defer core.Stop(ctx)
	defer intPlugin.Stop(ctx)
	defer stringPlugin.Stop(ctx)

	awaitCondition(t, func() bool {
		return len(core.RetrieveConnections(ConnectionFilter{OperationName: "vault"})) == 2
	}, "core never bound both vault plugins")

	sent := core.ExecuteDynamically(ctx, "vault", []SchemaTaggedPayload{
		{Schema: ExplicitSchema(`"int64"`), Payload: []byte("42")},
		{Schema: ExplicitSchema(`"string"`), Payload: []byte(`"hello"`)},
	})
	assert.Equal(t, 2, sent)

	awaitCondition(t, func() bool {
		return len(intSeen) == 1 && len(stringSeen) == 1
	}, "dynamic dispatch did not route to both plugins")
	assert.Equal(t, "42", string(intSeen[0]))
	assert.Equal(t, `"hello"`, string(stringSeen[0]))
}

// TestScenarioPolicyRejectsIncompatibleCore confirms a plugin whose Policy
// blocklists a core never offers it the operation, so the core never
// becomes compliant.
func TestScenarioPolicyRejectsIncompatibleCore(t *testing.T) {
	ctx := context.Background()
	shared := local.New()

	core := NewCore(shared, NewConfig(), map[string]Requirement{
		"turn_on": {
			Constraint: NewConstraint(1, intPtr(1), nil,
				[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil),
		},
	}, nil)

	plugin := NewPlugin(shared, NewConfig(), Operation{
		Name:    "turn_on",
		Input:   turnOnInput(),
		Output:  turnOnOutput(),
		Handler: HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) { return nil, nil }),
		Policy:  NewPolicy(nil, []string{core.ID()}, nil),
	})

	require.NoError(t, plugin.Start(ctx))
	require.NoError(t, core.Start(ctx))
	defer core.Stop(ctx)
	defer plugin.Stop(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateNotCompliant, core.ComplianceState())
	assert.Empty(t, core.RetrieveConnections(ConnectionFilter{}))
}

// TestScenarioGracefulCloseRemovesBothSides drives a confirmed connection to
// close, verifying both the plugin-initiated close and the core-side
// teardown converge.
func TestScenarioGracefulCloseRemovesBothSides(t *testing.T) {
	ctx := context.Background()
	shared := local.New()

	core := NewCore(shared, NewConfig(), map[string]Requirement{
		"turn_on": {
			Constraint: NewConstraint(0, nil, nil,
				[]SchemaSpec{turnOnInput()}, []SchemaSpec{turnOnOutput()}, nil, nil),
		},
	}, nil)
	plugin := NewPlugin(shared, NewConfig(), Operation{
		Name:    "turn_on",
		Input:   turnOnInput(),
		Output:  turnOnOutput(),
		Handler: HandlerFunc(func(ctx context.Context, input []byte) ([]byte, error) { return nil, nil }),
		Policy:  NewPolicy(nil, nil, nil),
	})

	require.NoError(t, plugin.Start(ctx))
	require.NoError(t, core.Start(ctx))
	defer core.Stop(ctx)
	defer plugin.Stop(ctx)

	awaitCondition(t, func() bool {
		return len(plugin.RetrieveConnections(ConnectionFilter{})) == 1
	}, "plugin never confirmed a connection")

	conns := plugin.RetrieveConnections(ConnectionFilter{})
	require.Len(t, conns, 1)
	require.NoError(t, plugin.CloseConnection(ctx, conns[0], false, nil))

	awaitCondition(t, func() bool {
		return len(plugin.RetrieveConnections(ConnectionFilter{})) == 0
	}, "plugin connection was not removed")
	awaitCondition(t, func() bool {
		return len(core.RetrieveConnections(ConnectionFilter{})) == 0
	}, "core connection was not removed after peer-initiated close")
}
