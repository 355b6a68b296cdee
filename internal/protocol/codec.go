package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeLine marshals a message and appends the newline frame delimiter.
//
// Postcondition: Returns a complete wire frame ending in '\n', or a non-nil error.
func EncodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return append(data, '\n'), nil
}

// Encode marshals a message without framing, for datagram transports.
//
// Postcondition: Returns the JSON encoding of v, or a non-nil error.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return data, nil
}

// Decode parses one frame into the inbound envelope. The frame may carry a
// trailing newline or carriage return; both are stripped before parsing.
//
// Postcondition: Returns the decoded Message, or a non-nil error for
// undecodable input. An unrecognized type tag is not an error; the Message
// simply carries the unknown tag.
func Decode(frame []byte) (Message, error) {
	frame = bytes.TrimRight(frame, "\r\n")
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding frame: %w", err)
	}
	return msg, nil
}

// Known reports whether t is part of the message catalog.
func Known(t Type) bool {
	switch t {
	case TypeHeartbeat, TypeHostGame, TypeListGames, TypeJoinGame, TypeLeaveRoom,
		TypeStartGame, TypeGetRoomPlayers, TypeRelayMessage, TypePing,
		TypePlayerInfo, TypePositionUpdate, TypeGameData,
		TypeRegistered, TypeHeartbeatAck, TypeGameHosted, TypeGameList,
		TypeJoinedGame, TypeJoinFailed, TypeGameStarted, TypeRoomPlayers,
		TypeRelay, TypePingResponse, TypePlayerJoined, TypePlayerDisconnected,
		TypeKicked, TypeServerMessage, TypeResetPosition:
		return true
	default:
		return false
	}
}
