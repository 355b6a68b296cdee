package relay

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/config"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// Server is the relay engine. It owns the session registry, the room
// manager, and the spawn allocator, and dispatches control messages for the
// acceptor and datagrams for the data endpoint.
type Server struct {
	cfg      config.RelayConfig
	logger   *zap.Logger
	registry *Registry
	rooms    *Rooms
	spawns   *Allocator
}

// New wires a relay engine from its components.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns an engine ready to serve control and data traffic.
func New(cfg config.RelayConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}
	s.registry = NewRegistry(logger)
	s.spawns = NewAllocator(logger)
	s.rooms = NewRooms(s.spawns, s.Send, logger)
	return s
}

// Send delivers a control-channel message to one client. Unknown identities
// and write failures are swallowed: a slow or dead peer must never affect
// the operation that triggered the send. The peer's own read loop handles
// its teardown.
func (s *Server) Send(clientID string, v any) {
	conn, ok := s.registry.Conn(clientID)
	if !ok {
		return
	}
	if err := conn.WriteMessage(v); err != nil {
		s.logger.Debug("control send failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	}
}

// Teardown removes the client's session and room memberships. Safe to call
// from any exit path; both halves are idempotent.
func (s *Server) Teardown(clientID string) {
	s.registry.Remove(clientID)
	s.rooms.RemoveEverywhere(clientID)
}

// handleControl processes one parsed control-channel message. Replies to the
// sender go directly to its conn; peer fan-out goes through Send.
func (s *Server) handleControl(clientID string, conn *Conn, msg protocol.Message) {
	s.registry.Touch(clientID)

	switch msg.Type {
	case protocol.TypeHeartbeat:
		s.reply(clientID, conn, protocol.NewHeartbeatAck())

	case protocol.TypeHostGame:
		roomID := s.rooms.Host(clientID, msg.RoomName, msg.MaxPlayers)
		s.reply(clientID, conn, protocol.NewGameHosted(roomID))

	case protocol.TypeListGames:
		s.reply(clientID, conn, protocol.NewGameList(s.rooms.List()))

	case protocol.TypeJoinGame:
		result, err := s.rooms.Join(msg.RoomID, clientID)
		switch {
		case errors.Is(err, ErrRoomFull):
			s.reply(clientID, conn, protocol.NewJoinFailed("Room is full"))
		case errors.Is(err, ErrRoomNotFound):
			s.reply(clientID, conn, protocol.NewJoinFailed("Room not found"))
		default:
			s.reply(clientID, conn, protocol.NewJoinedGame(result.RoomID, result.HostID, result.Players, result.Started))
		}

	case protocol.TypeLeaveRoom:
		s.rooms.Leave(msg.RoomID, clientID)

	case protocol.TypeStartGame:
		s.rooms.Start(msg.RoomID, clientID)

	case protocol.TypeGetRoomPlayers:
		if players, ok := s.rooms.Players(msg.RoomID); ok {
			s.reply(clientID, conn, protocol.NewRoomPlayers(players))
		}

	case protocol.TypeRelayMessage:
		s.relayMessage(clientID, msg)

	case protocol.TypePing:
		s.reply(clientID, conn, protocol.NewPingResponse(msg.Timestamp))
		if msg.Timestamp > 0 {
			rtt := float64(time.Now().UnixMilli()) - msg.Timestamp
			s.registry.SetLatency(clientID, rtt)
		}

	case protocol.TypePlayerInfo:
		if msg.Name != "" {
			s.registry.SetName(clientID, msg.Name)
		}

	case protocol.TypePositionUpdate:
		if msg.Position != nil {
			s.registry.SetPosition(clientID, *msg.Position)
		}

	default:
		s.logger.Debug("ignoring unknown control message",
			zap.String("client_id", clientID),
			zap.String("type", string(msg.Type)),
		)
	}
}

// relayMessage forwards a control-channel payload to one recipient or to the
// sender's room peers. The sender is always excluded from room fan-out.
func (s *Server) relayMessage(clientID string, msg protocol.Message) {
	if msg.Text == "" {
		return
	}
	forward := protocol.NewRelay(clientID, msg.Text)

	switch {
	case msg.TargetID != "":
		s.Send(msg.TargetID, forward)
	case msg.RoomID != "":
		players, ok := s.rooms.Players(msg.RoomID)
		if !ok {
			return
		}
		for _, p := range players {
			if p != clientID {
				s.Send(p, forward)
			}
		}
	}
}

// reply sends a direct response on the originating connection. Failures are
// logged only; the read loop notices a dead connection and tears down.
func (s *Server) reply(clientID string, conn *Conn, v any) {
	if err := conn.WriteMessage(v); err != nil {
		s.logger.Debug("reply failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	}
}
