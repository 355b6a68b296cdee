package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/config"
	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// maxFrameSize bounds one control-channel line. Longer lines are discarded
// without ending the session.
const maxFrameSize = 64 * 1024

// ControlServer listens for control-channel TCP connections and runs one
// receive loop per client.
type ControlServer struct {
	addr         string
	writeTimeout time.Duration
	engine       *Server
	logger       *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewControlServer creates a control-channel acceptor.
//
// Precondition: engine and logger must be non-nil.
// Postcondition: Returns a ControlServer ready to be started with ListenAndServe.
func NewControlServer(srvCfg config.ServerConfig, relayCfg config.RelayConfig, engine *Server, logger *zap.Logger) *ControlServer {
	return &ControlServer{
		addr:         srvCfg.TCPAddr(),
		writeTimeout: relayCfg.WriteTimeout,
		engine:       engine,
		logger:       logger,
		quit:         make(chan struct{}),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until Stop
// is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (cs *ControlServer) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", cs.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cs.addr, err)
	}

	cs.mu.Lock()
	cs.listener = listener
	cs.running = true
	cs.mu.Unlock()

	cs.logger.Info("control channel listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-cs.quit:
				return nil
			default:
				cs.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		cs.wg.Add(1)
		go cs.handleConn(conn)
	}
}

// handleConn registers the client, acknowledges it, and runs the receive
// loop. Whichever way the loop exits, the deferred teardown removes the
// session and every room membership.
func (cs *ControlServer) handleConn(raw net.Conn) {
	defer cs.wg.Done()
	start := time.Now()

	host, portStr, err := net.SplitHostPort(raw.RemoteAddr().String())
	if err != nil {
		cs.logger.Error("parsing remote address",
			zap.String("remote_addr", raw.RemoteAddr().String()),
			zap.Error(err),
		)
		_ = raw.Close()
		return
	}
	port, _ := strconv.Atoi(portStr)

	conn := NewConn(raw, cs.writeTimeout)
	clientID := cs.engine.registry.Register(conn, host, port)

	defer func() {
		cs.engine.Teardown(clientID)
		cs.logger.Info("client disconnected",
			zap.String("client_id", clientID),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	if err := conn.WriteMessage(protocol.NewRegistered(clientID, host, port)); err != nil {
		cs.logger.Debug("registration ack failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return
	}

	// Frames are split strictly on '\n'; batched arrivals yield multiple
	// reads. Undecodable frames are dropped without closing the connection,
	// and a line over the frame cap is discarded the same way rather than
	// ending the session.
	reader := bufio.NewReaderSize(raw, maxFrameSize)
	for {
		line, err := reader.ReadSlice('\n')

		if errors.Is(err, bufio.ErrBufferFull) {
			dropped := len(line)
			for errors.Is(err, bufio.ErrBufferFull) {
				line, err = reader.ReadSlice('\n')
				dropped += len(line)
			}
			cs.logger.Warn("dropping oversized frame",
				zap.String("client_id", clientID),
				zap.Int("bytes", dropped),
			)
			line = nil
		}

		if frame := bytes.TrimRight(line, "\r\n"); len(frame) > 0 {
			msg, derr := protocol.Decode(frame)
			if derr != nil {
				cs.logger.Warn("dropping undecodable frame",
					zap.String("client_id", clientID),
					zap.Error(derr),
				)
			} else {
				cs.engine.handleControl(clientID, conn, msg)
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				cs.logger.Debug("receive loop ended",
					zap.String("client_id", clientID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// Stop closes the listener, force-closes every registered client connection,
// and waits for all receive loops to exit.
//
// Postcondition: All connections are closed and goroutines have exited.
func (cs *ControlServer) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.quit)
	if cs.listener != nil {
		cs.listener.Close()
	}
	cs.mu.Unlock()

	for _, view := range cs.engine.registry.Snapshot() {
		cs.engine.Teardown(view.ID)
	}
	cs.wg.Wait()

	cs.logger.Info("control channel stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (cs *ControlServer) Addr() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.listener != nil {
		return cs.listener.Addr().String()
	}
	return ""
}

// Start implements the lifecycle Service interface.
func (cs *ControlServer) Start() error { return cs.ListenAndServe() }
