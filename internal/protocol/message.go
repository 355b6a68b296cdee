// Package protocol defines the wire messages exchanged on the relay's control
// and data channels. Both channels speak UTF-8 JSON objects; the control
// channel frames one object per newline-terminated line, the data channel one
// object per datagram.
package protocol

import "encoding/json"

// Type identifies a message kind. The catalog is closed: dispatchers switch
// over these constants and treat any other tag as TypeUnknown.
type Type string

// Client-to-server message types.
const (
	TypeHeartbeat      Type = "HEARTBEAT"
	TypeHostGame       Type = "HOST_GAME"
	TypeListGames      Type = "LIST_GAMES"
	TypeJoinGame       Type = "JOIN_GAME"
	TypeLeaveRoom      Type = "LEAVE_ROOM"
	TypeStartGame      Type = "START_GAME"
	TypeGetRoomPlayers Type = "GET_ROOM_PLAYERS"
	TypeRelayMessage   Type = "RELAY_MESSAGE"
	TypePing           Type = "PING"
	TypePlayerInfo     Type = "PLAYER_INFO"
	TypePositionUpdate Type = "POSITION_UPDATE"
	TypeGameData       Type = "GAME_DATA"
)

// Server-to-client message types.
const (
	TypeRegistered         Type = "REGISTERED"
	TypeHeartbeatAck       Type = "HEARTBEAT_ACK"
	TypeGameHosted         Type = "GAME_HOSTED"
	TypeGameList           Type = "GAME_LIST"
	TypeJoinedGame         Type = "JOINED_GAME"
	TypeJoinFailed         Type = "JOIN_FAILED"
	TypeGameStarted        Type = "GAME_STARTED"
	TypeRoomPlayers        Type = "ROOM_PLAYERS"
	TypeRelay              Type = "RELAY"
	TypePingResponse       Type = "PING_RESPONSE"
	TypePlayerJoined       Type = "PLAYER_JOINED"
	TypePlayerDisconnected Type = "PLAYER_DISCONNECTED"
	TypeKicked             Type = "KICKED"
	TypeServerMessage      Type = "SERVER_MESSAGE"
	TypeResetPosition      Type = "RESET_POSITION"
)

// TypeUnknown is the default variant for tags outside the catalog.
// Unknown messages are logged and ignored, never treated as errors.
const TypeUnknown Type = ""

// Vector3 is a 3-D position as the game client reports it.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SpawnPosition is an assigned spawn coordinate plus its slot index.
type SpawnPosition struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Index int     `json:"index"`
}

// RoomSummary describes one room in a GAME_LIST response.
type RoomSummary struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	HostID      string `json:"host_id"`
}

// Message is the inbound envelope. Every field a client may send appears
// here; dispatchers read only the fields defined for the message's Type.
type Message struct {
	Type       Type            `json:"type"`
	ClientID   string          `json:"client_id,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	RoomName   string          `json:"room_name,omitempty"`
	MaxPlayers int             `json:"max_players,omitempty"`
	Name       string          `json:"name,omitempty"`
	Text       string          `json:"message,omitempty"`
	Timestamp  float64         `json:"timestamp,omitempty"`
	Position   *Vector3        `json:"position,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Registered acknowledges a new control connection, echoing the identity the
// server issued and the public address it observed.
type Registered struct {
	Type       Type   `json:"type"`
	ClientID   string `json:"client_id"`
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
}

// NewRegistered builds a REGISTERED acknowledgement.
func NewRegistered(clientID, ip string, port int) Registered {
	return Registered{Type: TypeRegistered, ClientID: clientID, PublicIP: ip, PublicPort: port}
}

// HeartbeatAck acknowledges a HEARTBEAT.
type HeartbeatAck struct {
	Type Type `json:"type"`
}

// NewHeartbeatAck builds a HEARTBEAT_ACK.
func NewHeartbeatAck() HeartbeatAck {
	return HeartbeatAck{Type: TypeHeartbeatAck}
}

// GameHosted reports the room id created (or re-reported) for a HOST_GAME.
type GameHosted struct {
	Type   Type   `json:"type"`
	RoomID string `json:"room_id"`
}

// NewGameHosted builds a GAME_HOSTED response.
func NewGameHosted(roomID string) GameHosted {
	return GameHosted{Type: TypeGameHosted, RoomID: roomID}
}

// GameList carries the current room summaries for a LIST_GAMES.
type GameList struct {
	Type  Type          `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// NewGameList builds a GAME_LIST response.
func NewGameList(rooms []RoomSummary) GameList {
	return GameList{Type: TypeGameList, Rooms: rooms}
}

// JoinedGame confirms a successful JOIN_GAME to the joiner.
type JoinedGame struct {
	Type        Type     `json:"type"`
	RoomID      string   `json:"room_id"`
	HostID      string   `json:"host_id"`
	Players     []string `json:"players"`
	GameStarted bool     `json:"game_started"`
}

// NewJoinedGame builds a JOINED_GAME response.
func NewJoinedGame(roomID, hostID string, players []string, started bool) JoinedGame {
	return JoinedGame{Type: TypeJoinedGame, RoomID: roomID, HostID: hostID, Players: players, GameStarted: started}
}

// JoinFailed reports a rejected JOIN_GAME.
type JoinFailed struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

// NewJoinFailed builds a JOIN_FAILED response.
func NewJoinFailed(reason string) JoinFailed {
	return JoinFailed{Type: TypeJoinFailed, Reason: reason}
}

// GameStarted notifies one member that the game began, with the full player
// list and that member's assigned spawn position.
type GameStarted struct {
	Type          Type          `json:"type"`
	PlayerIDs     []string      `json:"player_ids"`
	SpawnPosition SpawnPosition `json:"spawn_position"`
}

// NewGameStarted builds a GAME_STARTED notification.
func NewGameStarted(playerIDs []string, spawn SpawnPosition) GameStarted {
	return GameStarted{Type: TypeGameStarted, PlayerIDs: playerIDs, SpawnPosition: spawn}
}

// RoomPlayers answers a GET_ROOM_PLAYERS.
type RoomPlayers struct {
	Type    Type     `json:"type"`
	Players []string `json:"players"`
}

// NewRoomPlayers builds a ROOM_PLAYERS response.
func NewRoomPlayers(players []string) RoomPlayers {
	return RoomPlayers{Type: TypeRoomPlayers, Players: players}
}

// Relay is a forwarded control-channel message, re-wrapped with the sender id.
type Relay struct {
	Type Type   `json:"type"`
	From string `json:"from"`
	Text string `json:"message"`
}

// NewRelay builds a RELAY forward.
func NewRelay(from, text string) Relay {
	return Relay{Type: TypeRelay, From: from, Text: text}
}

// PingResponse echoes a PING timestamp for round-trip measurement.
type PingResponse struct {
	Type      Type    `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// NewPingResponse builds a PING_RESPONSE.
func NewPingResponse(timestamp float64) PingResponse {
	return PingResponse{Type: TypePingResponse, Timestamp: timestamp}
}

// PlayerJoined tells existing members that a client joined their room.
type PlayerJoined struct {
	Type     Type   `json:"type"`
	ClientID string `json:"client_id"`
}

// NewPlayerJoined builds a PLAYER_JOINED notification.
func NewPlayerJoined(clientID string) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, ClientID: clientID}
}

// PlayerDisconnected tells remaining members that a client left their room.
type PlayerDisconnected struct {
	Type     Type   `json:"type"`
	PlayerID string `json:"player_id"`
}

// NewPlayerDisconnected builds a PLAYER_DISCONNECTED notification.
func NewPlayerDisconnected(playerID string) PlayerDisconnected {
	return PlayerDisconnected{Type: TypePlayerDisconnected, PlayerID: playerID}
}

// Kicked tells a client it is being removed by an operator.
type Kicked struct {
	Type Type   `json:"type"`
	Text string `json:"message"`
}

// NewKicked builds a KICKED notification.
func NewKicked(text string) Kicked {
	return Kicked{Type: TypeKicked, Text: text}
}

// ServerMessage carries an operator broadcast.
type ServerMessage struct {
	Type Type   `json:"type"`
	Text string `json:"message"`
}

// NewServerMessage builds a SERVER_MESSAGE broadcast.
func NewServerMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeServerMessage, Text: text}
}

// ResetPosition tells a client to move back to the given position.
type ResetPosition struct {
	Type     Type    `json:"type"`
	Position Vector3 `json:"position"`
}

// NewResetPosition builds a RESET_POSITION command.
func NewResetPosition(pos Vector3) ResetPosition {
	return ResetPosition{Type: TypeResetPosition, Position: pos}
}

// Forward is a data-channel payload re-wrapped for delivery. The payload is
// passed through unmodified: Data for GAME_DATA, Position for POSITION_UPDATE.
type Forward struct {
	Type     Type            `json:"type"`
	From     string          `json:"from"`
	Data     json.RawMessage `json:"data,omitempty"`
	Position *Vector3        `json:"position,omitempty"`
}

// NewForward re-wraps a datagram payload with the sender id.
func NewForward(t Type, from string, data json.RawMessage, pos *Vector3) Forward {
	return Forward{Type: t, From: from, Data: data, Position: pos}
}
