package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAnnotatesWorkerAndKind(t *testing.T) {
	env := Wrap("clue", Event("clue", "received", map[string]any{"id": "9"}))

	assert.Equal(t, "clue", env.Worker)
	assert.Equal(t, "event", env.Kind)
	assert.Equal(t, "received", env.Action)
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.Time.IsZero())
}

func TestWrapKindsCarryOnlyTheirFields(t *testing.T) {
	sys := Wrap("shutdown-restart", System(ActionShutdown))
	assert.Equal(t, "system", sys.Kind)
	assert.Equal(t, "shutdown", sys.System)
	assert.Empty(t, sys.Component)

	conn := Wrap("device-heartbeat", Connection(ConnectionRestored))
	assert.Equal(t, "connection", conn.Kind)
	assert.Equal(t, "restored", conn.Connection)

	reset := Wrap("game-info", Reset())
	assert.Equal(t, "reset", reset.Kind)
	assert.Empty(t, reset.System)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a := Wrap("w", Reset())
	b := Wrap("w", Reset())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnvelopeJSONShape(t *testing.T) {
	env := Wrap("clue", Event("clue", "received", map[string]any{"id": "9"}))

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "clue", decoded["worker"])
	assert.Equal(t, "event", decoded["kind"])
	// Omitted unions must not appear on the wire.
	assert.NotContains(t, decoded, "system")
	assert.NotContains(t, decoded, "connection")
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := NewChanSink(1, nil)
	sink.Forward(Wrap("a", Reset()))
	sink.Forward(Wrap("b", Reset())) // dropped, must not block

	first := <-sink.Events()
	assert.Equal(t, "a", first.Worker)
	select {
	case extra := <-sink.Events():
		t.Fatalf("expected drop, got %+v", extra)
	default:
	}
}
