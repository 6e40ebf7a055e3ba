package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := Encode(TypeUpdate, "sess-1", UpdatePayload{HTML: "<div>hi</div>"})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUpdate, env.Type)
	assert.Equal(t, "sess-1", env.SessionID)

	var payload UpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "<div>hi</div>", payload.HTML)
}

func TestDecodeEvent(t *testing.T) {
	raw, err := Encode(TypeEvent, "sess-2", EventPayload{
		Name: "increment",
		Args: map[string]interface{}{"argN": float64(1)},
	})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TypeEvent, env.Type)

	evt, err := DecodeEvent(env)
	require.NoError(t, err)
	assert.Equal(t, "increment", evt.Name)
	assert.Equal(t, float64(1), evt.Args["argN"])
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestDecodeRelocate(t *testing.T) {
	raw, err := Encode(TypeRelocate, "sess-4", RelocatePayload{Path: "/about"})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, TypeRelocate, env.Type)

	rel, err := DecodeRelocate(env)
	require.NoError(t, err)
	assert.Equal(t, "/about", rel.Path)
}

func TestDecodeEventWrongType(t *testing.T) {
	raw, err := Encode(TypeReload, "sess-3", ReloadPayload{Reason: "dev restart"})
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)

	// DecodeEvent doesn't check env.Type itself; callers are expected to
	// branch on it first. Unmarshaling a ReloadPayload's bytes into
	// EventPayload just yields zero values rather than an error.
	evt, err := DecodeEvent(env)
	require.NoError(t, err)
	assert.Empty(t, evt.Name)
}
