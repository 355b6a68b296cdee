package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLineAppendsDelimiter(t *testing.T) {
	frame, err := EncodeLine(NewHeartbeatAck())
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(frame, []byte{'\n'}))
	assert.Equal(t, byte('{'), frame[0])
}

func TestDecodeStripsFraming(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"HEARTBEAT"}` + "\r\n"))
	require.NoError(t, err)
	assert.Equal(t, TypeHeartbeat, msg.Type)
}

func TestDecodeHostGame(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"HOST_GAME","room_name":"Monza","max_players":6}`))
	require.NoError(t, err)
	assert.Equal(t, TypeHostGame, msg.Type)
	assert.Equal(t, "Monza", msg.RoomName)
	assert.Equal(t, 6, msg.MaxPlayers)
}

func TestDecodePositionUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"POSITION_UPDATE","client_id":"client_3","position":{"x":1.5,"y":-2,"z":0.8}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Position)
	assert.Equal(t, 1.5, msg.Position.X)
	assert.Equal(t, -2.0, msg.Position.Y)
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestDecodeUnknownTagIsNotAnError(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"WARP_DRIVE"}`))
	require.NoError(t, err)
	assert.False(t, Known(msg.Type))
}

func TestKnownCoversCatalog(t *testing.T) {
	for _, tag := range []Type{
		TypeHeartbeat, TypeHostGame, TypeJoinGame, TypeGameData,
		TypeRegistered, TypeGameStarted, TypeResetPosition,
	} {
		assert.True(t, Known(tag), "tag %q should be known", tag)
	}
	assert.False(t, Known(TypeUnknown))
}

func TestJoinedGameAlwaysCarriesStartedFlag(t *testing.T) {
	frame, err := Encode(NewJoinedGame("room_1", "client_1", []string{"client_1", "client_2"}, false))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	started, present := decoded["game_started"]
	assert.True(t, present, "game_started must be present even when false")
	assert.Equal(t, false, started)
}

func TestForwardPassesPayloadThrough(t *testing.T) {
	payload := json.RawMessage(`{"speed":212.4,"gear":6}`)
	frame, err := Encode(NewForward(TypeGameData, "client_7", payload, nil))
	require.NoError(t, err)

	var decoded struct {
		Type Type            `json:"type"`
		From string          `json:"from"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, TypeGameData, decoded.Type)
	assert.Equal(t, "client_7", decoded.From)
	assert.JSONEq(t, string(payload), string(decoded.Data))
}

func TestSpawnPositionWireShape(t *testing.T) {
	frame, err := Encode(NewGameStarted([]string{"client_1"}, SpawnPosition{X: 66, Y: -2, Z: 0.8, Index: 0}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	spawn, ok := decoded["spawn_position"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 66.0, spawn["x"])
	assert.Equal(t, 0.0, spawn["index"])
}
