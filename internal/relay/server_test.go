package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/config"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/testutil"
)

func newTestEngine(t *testing.T) *Server {
	t.Helper()
	cfg := config.RelayConfig{
		HeartbeatTimeout: time.Minute,
		ReapInterval:     10 * time.Second,
		WriteTimeout:     time.Second,
	}
	return New(cfg, zaptest.NewLogger(t))
}

// connectClient registers a capture-backed control connection directly,
// bypassing the acceptor.
func connectClient(t *testing.T, s *Server) (string, *Conn, *testutil.CaptureConn) {
	t.Helper()
	raw := testutil.NewCaptureConn()
	conn := NewConn(raw, 0)
	id := s.registry.Register(conn, "203.0.113.10", 40000)
	return id, conn, raw
}

func TestHostJoinFullScenario(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, bConn, bRaw := connectClient(t, s)
	cID, cConn, cRaw := connectClient(t, s)

	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame, RoomName: "R", MaxPlayers: 2})
	hosted := aRaw.Frames(t)
	require.Len(t, hosted, 1)
	assert.Equal(t, "GAME_HOSTED", hosted[0]["type"])
	assert.Equal(t, "room_1", hosted[0]["room_id"])
	aRaw.Reset()

	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	joined := bRaw.Frames(t)
	require.Len(t, joined, 1)
	assert.Equal(t, "JOINED_GAME", joined[0]["type"])
	assert.Equal(t, aID, joined[0]["host_id"])
	assert.Equal(t, []any{aID, bID}, joined[0]["players"])
	assert.Equal(t, false, joined[0]["game_started"])

	notified := aRaw.Frames(t)
	require.Len(t, notified, 1)
	assert.Equal(t, "PLAYER_JOINED", notified[0]["type"])
	assert.Equal(t, bID, notified[0]["client_id"])

	s.handleControl(cID, cConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	failed := cRaw.Frames(t)
	require.Len(t, failed, 1)
	assert.Equal(t, "JOIN_FAILED", failed[0]["type"])
	assert.Equal(t, "Room is full", failed[0]["reason"])
}

func TestRejoinAtCapacityGetsJoinFailed(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, _ := connectClient(t, s)
	bID, bConn, bRaw := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame, MaxPlayers: 2})
	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	bRaw.Reset()

	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})

	frames := bRaw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "JOIN_FAILED", frames[0]["type"])
	assert.Equal(t, "Room is full", frames[0]["reason"])
}

func TestHeartbeatIsAcked(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypeHeartbeat})

	assert.Equal(t, []string{"HEARTBEAT_ACK"}, raw.Types(t))
}

func TestListGames(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame, RoomName: "Monza", MaxPlayers: 6})
	aRaw.Reset()

	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeListGames})

	frames := aRaw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "GAME_LIST", frames[0]["type"])
	rooms, ok := frames[0]["rooms"].([]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	room := rooms[0].(map[string]any)
	assert.Equal(t, "Monza", room["name"])
	assert.Equal(t, 6.0, room["max_players"])
	assert.Equal(t, 1.0, room["player_count"])
}

func TestJoinUnknownRoomReason(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_404"})

	frames := raw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "JOIN_FAILED", frames[0]["type"])
	assert.Equal(t, "Room not found", frames[0]["reason"])
}

func TestLeaveRoomNotifiesRemainingMembers(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, bConn, _ := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame})
	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	aRaw.Reset()

	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeLeaveRoom, RoomID: "room_1"})

	frames := aRaw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "PLAYER_DISCONNECTED", frames[0]["type"])
	assert.Equal(t, bID, frames[0]["player_id"])
	assert.Equal(t, 1, s.rooms.Count())
}

func TestStartGameDeliversSpawns(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, bConn, bRaw := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame})
	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	aRaw.Reset()
	bRaw.Reset()

	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeStartGame, RoomID: "room_1"})

	for _, raw := range []*testutil.CaptureConn{aRaw, bRaw} {
		frames := raw.Frames(t)
		require.Len(t, frames, 1)
		assert.Equal(t, "GAME_STARTED", frames[0]["type"])
		assert.Equal(t, []any{aID, bID}, frames[0]["player_ids"])
		spawn, ok := frames[0]["spawn_position"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, -2.0, spawn["y"])
	}
}

func TestGetRoomPlayers(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)
	s.handleControl(id, conn, protocol.Message{Type: protocol.TypeHostGame})
	raw.Reset()

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypeGetRoomPlayers, RoomID: "room_1"})
	frames := raw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "ROOM_PLAYERS", frames[0]["type"])
	assert.Equal(t, []any{id}, frames[0]["players"])
	raw.Reset()

	// Unknown room: no reply at all.
	s.handleControl(id, conn, protocol.Message{Type: protocol.TypeGetRoomPlayers, RoomID: "room_404"})
	assert.Empty(t, raw.Frames(t))
}

func TestRelayToTarget(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, _, bRaw := connectClient(t, s)

	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeRelayMessage, TargetID: bID, Text: "box box"})

	frames := bRaw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "RELAY", frames[0]["type"])
	assert.Equal(t, aID, frames[0]["from"])
	assert.Equal(t, "box box", frames[0]["message"])
	assert.Empty(t, aRaw.Frames(t), "sender never receives its own relay")
}

func TestRelayToRoomExcludesSender(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, bConn, bRaw := connectClient(t, s)
	cID, cConn, cRaw := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame})
	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	s.handleControl(cID, cConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	aRaw.Reset()
	bRaw.Reset()
	cRaw.Reset()

	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeRelayMessage, RoomID: "room_1", Text: "lap 2"})

	assert.Equal(t, []string{"RELAY"}, aRaw.Types(t))
	assert.Equal(t, []string{"RELAY"}, cRaw.Types(t))
	assert.Empty(t, bRaw.Frames(t))
}

func TestRelayWithoutTextIsDropped(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, _ := connectClient(t, s)
	bID, _, bRaw := connectClient(t, s)

	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeRelayMessage, TargetID: bID})

	assert.Empty(t, bRaw.Frames(t))
}

func TestPingEchoesTimestampAndRecordsLatency(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)
	sent := float64(time.Now().UnixMilli() - 25)

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypePing, Timestamp: sent})

	frames := raw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "PING_RESPONSE", frames[0]["type"])
	assert.Equal(t, sent, frames[0]["timestamp"])

	views := s.registry.Snapshot()
	require.Len(t, views, 1)
	assert.True(t, views[0].HasLatency)
	assert.GreaterOrEqual(t, views[0].LatencyMS, 25.0)
}

func TestPingWithoutTimestampSkipsLatency(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypePing})

	assert.Equal(t, []string{"PING_RESPONSE"}, raw.Types(t))
	assert.False(t, s.registry.Snapshot()[0].HasLatency)
}

func TestPlayerInfoSetsName(t *testing.T) {
	s := newTestEngine(t)
	id, conn, _ := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{Type: protocol.TypePlayerInfo, Name: "Ayrton"})
	assert.Equal(t, "Ayrton", s.registry.Snapshot()[0].Name)

	// Empty names are ignored, not applied.
	s.handleControl(id, conn, protocol.Message{Type: protocol.TypePlayerInfo})
	assert.Equal(t, "Ayrton", s.registry.Snapshot()[0].Name)
}

func TestPositionUpdateOverControl(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{
		Type:     protocol.TypePositionUpdate,
		Position: &protocol.Vector3{X: 12.5, Y: -2, Z: 0.8},
	})

	views := s.registry.Snapshot()
	require.NotNil(t, views[0].Position)
	assert.Equal(t, 12.5, views[0].Position.X)
	assert.Empty(t, raw.Frames(t), "position updates are not acknowledged")
}

func TestUnknownControlTypeIsIgnored(t *testing.T) {
	s := newTestEngine(t)
	id, conn, raw := connectClient(t, s)

	s.handleControl(id, conn, protocol.Message{Type: "WARP_DRIVE"})

	assert.Empty(t, raw.Frames(t))
	assert.Equal(t, 1, s.registry.Count())
}

func TestSendToUnknownClientIsSwallowed(t *testing.T) {
	s := newTestEngine(t)
	s.Send("client_99", protocol.NewHeartbeatAck())
}

func TestTeardownRemovesSessionAndMemberships(t *testing.T) {
	s := newTestEngine(t)
	aID, aConn, aRaw := connectClient(t, s)
	bID, bConn, bRaw := connectClient(t, s)
	s.handleControl(aID, aConn, protocol.Message{Type: protocol.TypeHostGame})
	s.handleControl(bID, bConn, protocol.Message{Type: protocol.TypeJoinGame, RoomID: "room_1"})
	aRaw.Reset()

	s.Teardown(bID)

	assert.False(t, s.registry.Contains(bID))
	assert.True(t, bRaw.Closed())
	frames := aRaw.Frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "PLAYER_DISCONNECTED", frames[0]["type"])

	// Host teardown deletes the room as well.
	s.Teardown(aID)
	clients, rooms := s.Counts()
	assert.Equal(t, 0, clients)
	assert.Equal(t, 0, rooms)
}
