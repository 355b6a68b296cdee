package relay

import (
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// PlayerStat is one row of the operator player report. Values are typed;
// display formatting belongs to the console, not the core.
type PlayerStat struct {
	ID          string
	Name        string
	IP          string
	Port        int
	LatencyMS   float64
	HasLatency  bool
	Position    *protocol.Vector3
	RoomID      string
	Role        string // "Host", "Player", or "Lobby"
	ConnectedAt time.Time
	LastSeen    time.Time
}

// PlayerStats returns derived stats for every connected client, in
// registration order.
func (s *Server) PlayerStats() []PlayerStat {
	views := s.registry.Snapshot()
	stats := make([]PlayerStat, 0, len(views))
	for _, v := range views {
		stat := PlayerStat{
			ID:          v.ID,
			Name:        v.Name,
			IP:          v.PublicIP,
			Port:        v.PublicPort,
			LatencyMS:   v.LatencyMS,
			HasLatency:  v.HasLatency,
			Position:    v.Position,
			Role:        "Lobby",
			ConnectedAt: v.ConnectedAt,
			LastSeen:    v.LastSeen,
		}
		if roomID, host, ok := s.rooms.Membership(v.ID); ok {
			stat.RoomID = roomID
			if host {
				stat.Role = "Host"
			} else {
				stat.Role = "Player"
			}
		}
		stats = append(stats, stat)
	}
	return stats
}

// RoomStats returns summaries of all rooms for the operator report.
func (s *Server) RoomStats() []protocol.RoomSummary {
	return s.rooms.List()
}

// Kick notifies the client it is being removed, then tears it down.
//
// Postcondition: Returns true if the client was registered, false otherwise.
func (s *Server) Kick(clientID string) bool {
	if !s.registry.Contains(clientID) {
		return false
	}
	s.Send(clientID, protocol.NewKicked("You have been kicked"))
	s.Teardown(clientID)
	s.logger.Info("client kicked", zap.String("client_id", clientID))
	return true
}

// Broadcast sends an operator message to every connected client.
//
// Postcondition: Returns the number of clients addressed.
func (s *Server) Broadcast(text string) int {
	views := s.registry.Snapshot()
	for _, v := range views {
		s.Send(v.ID, protocol.NewServerMessage(text))
	}
	s.logger.Info("broadcast sent",
		zap.String("message", text),
		zap.Int("recipients", len(views)),
	)
	return len(views)
}

// ResetPosition commands the client back to its assigned spawn slot, or slot
// 0 when it holds none, and updates the tracked position to match.
//
// Postcondition: Returns the position used and whether the client was found.
func (s *Server) ResetPosition(clientID string) (protocol.Vector3, bool) {
	if !s.registry.Contains(clientID) {
		return protocol.Vector3{}, false
	}

	pos := SlotPosition(0)
	if roomID, _, ok := s.rooms.Membership(clientID); ok {
		if index, assigned := s.spawns.AssignedIndex(roomID, clientID); assigned {
			pos = SlotPosition(index)
		}
	}

	s.Send(clientID, protocol.NewResetPosition(pos))
	s.registry.SetPosition(clientID, pos)
	s.logger.Info("position reset",
		zap.String("client_id", clientID),
		zap.Float64("x", pos.X),
		zap.Float64("z", pos.Z),
	)
	return pos, true
}

// Counts returns the connected client and active room totals.
func (s *Server) Counts() (clients, rooms int) {
	return s.registry.Count(), s.rooms.Count()
}
