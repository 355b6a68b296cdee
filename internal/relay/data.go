package relay

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// maxDatagramSize bounds one data-channel message, matching the game
// client's send buffer.
const maxDatagramSize = 2048

// DataServer runs the single shared data-channel endpoint. It binds each
// client's identity to its network address on first datagram and forwards
// game-state payloads to one peer or to a room's other members. The channel
// has no delivery guarantee and no retry: anything unresolvable is dropped.
type DataServer struct {
	addr   string
	engine *Server
	logger *zap.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
}

// NewDataServer creates the data-channel endpoint.
//
// Precondition: engine and logger must be non-nil.
func NewDataServer(addr string, engine *Server, logger *zap.Logger) *DataServer {
	return &DataServer{
		addr:   addr,
		engine: engine,
		logger: logger,
	}
}

// ListenAndServe binds the UDP socket and receives datagrams until Stop is
// called. This method blocks until the endpoint is stopped.
//
// Postcondition: The socket is closed when this method returns.
func (ds *DataServer) ListenAndServe() error {
	start := time.Now()

	udpAddr, err := net.ResolveUDPAddr("udp", ds.addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", ds.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", ds.addr, err)
	}

	ds.mu.Lock()
	ds.conn = conn
	ds.running = true
	ds.mu.Unlock()

	ds.logger.Info("data channel listening",
		zap.String("addr", conn.LocalAddr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	buf := make([]byte, maxDatagramSize)
	for {
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			ds.logger.Error("datagram receive", zap.Error(err))
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			ds.logger.Debug("dropping undecodable datagram",
				zap.String("sender", sender.String()),
				zap.Error(err),
			)
			continue
		}
		ds.engine.handleDatagram(conn, msg, sender)
	}
}

// Stop closes the UDP socket, terminating the receive loop.
func (ds *DataServer) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.running {
		return
	}
	ds.running = false
	if ds.conn != nil {
		ds.conn.Close()
	}
	ds.logger.Info("data channel stopped")
}

// Start implements the lifecycle Service interface.
func (ds *DataServer) Start() error { return ds.ListenAndServe() }

// handleDatagram processes one decoded data-channel message. Missing or
// unknown sender identities are dropped; the sender's datagram address is
// (re)bound before any forwarding.
func (s *Server) handleDatagram(conn *net.UDPConn, msg protocol.Message, sender *net.UDPAddr) {
	if msg.ClientID == "" {
		return
	}
	if !s.registry.Contains(msg.ClientID) {
		s.logger.Debug("dropping datagram from unknown client",
			zap.String("client_id", msg.ClientID),
			zap.String("sender", sender.String()),
		)
		return
	}
	s.registry.SetDatagramAddr(msg.ClientID, sender)

	switch msg.Type {
	case protocol.TypeGameData, protocol.TypePositionUpdate:
		if msg.Type == protocol.TypePositionUpdate && msg.Position != nil {
			s.registry.SetPosition(msg.ClientID, *msg.Position)
		}
		s.forwardDatagram(conn, msg)
	default:
		// Address binding is the only effect for other datagram types.
	}
}

// forwardDatagram re-wraps the payload with the sender identity and writes
// it to the target client, or to every other room member with a known
// datagram address. Unresolvable recipients are silently dropped.
func (s *Server) forwardDatagram(conn *net.UDPConn, msg protocol.Message) {
	frame, err := protocol.Encode(protocol.NewForward(msg.Type, msg.ClientID, msg.Data, msg.Position))
	if err != nil {
		s.logger.Debug("encoding forward", zap.Error(err))
		return
	}

	switch {
	case msg.TargetID != "":
		if addr, ok := s.registry.DatagramAddr(msg.TargetID); ok {
			s.writeDatagram(conn, frame, addr, msg.TargetID)
		}
	case msg.RoomID != "":
		players, ok := s.rooms.Players(msg.RoomID)
		if !ok {
			return
		}
		for _, p := range players {
			if p == msg.ClientID {
				continue
			}
			if addr, ok := s.registry.DatagramAddr(p); ok {
				s.writeDatagram(conn, frame, addr, p)
			}
		}
	}
}

// writeDatagram performs one best-effort UDP send.
func (s *Server) writeDatagram(conn *net.UDPConn, frame []byte, addr *net.UDPAddr, recipient string) {
	if _, err := conn.WriteToUDP(frame, addr); err != nil {
		s.logger.Debug("datagram send failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
	}
}
