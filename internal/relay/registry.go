package relay

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// clientSession is the registry's record for one connected client. The
// control connection handle is owned here; its lifetime matches the record's.
type clientSession struct {
	id          string
	conn        *Conn
	publicIP    string
	publicPort  int
	udpAddr     *net.UDPAddr
	lastSeen    time.Time
	connectedAt time.Time

	name       string
	latencyMS  float64
	hasLatency bool
	position   *protocol.Vector3
	positionAt time.Time
}

// SessionView is a read-only copy of a client session for reporting. It never
// exposes the live connection handle.
type SessionView struct {
	ID          string
	PublicIP    string
	PublicPort  int
	UDPAddr     *net.UDPAddr
	LastSeen    time.Time
	ConnectedAt time.Time
	Name        string
	LatencyMS   float64
	HasLatency  bool
	Position    *protocol.Vector3
	PositionAt  time.Time
}

// Registry owns the set of connected clients and their addressing and
// liveness metadata. All methods are safe for concurrent use; no critical
// section performs network I/O.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientSession
	nextID  int
	logger  *zap.Logger

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// NewRegistry creates an empty session registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*clientSession),
		nextID:  1,
		logger:  logger,
		now:     time.Now,
	}
}

// Register allocates a fresh identity for a new control connection and
// records the observed public address. Identities are monotonic for the
// process lifetime and never reused, so stale references later fail as
// not-found instead of resolving to a different client.
//
// Precondition: conn must be non-nil.
// Postcondition: Returns the new identity. Never fails.
func (r *Registry) Register(conn *Conn, publicIP string, publicPort int) string {
	r.mu.Lock()
	id := fmt.Sprintf("client_%d", r.nextID)
	r.nextID++
	now := r.now()
	r.clients[id] = &clientSession{
		id:          id,
		conn:        conn,
		publicIP:    publicIP,
		publicPort:  publicPort,
		lastSeen:    now,
		connectedAt: now,
	}
	r.mu.Unlock()

	r.logger.Info("client registered",
		zap.String("client_id", id),
		zap.String("public_ip", publicIP),
		zap.Int("public_port", publicPort),
	)
	return id
}

// Touch updates the client's last-seen time. Unknown identities are a silent
// no-op; the client may already have been evicted.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.lastSeen = r.now()
	}
}

// SetDatagramAddr records or overwrites the client's data-channel address and
// refreshes last-seen. No-op for unknown identities.
func (r *Registry) SetDatagramAddr(id string, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.udpAddr = addr
		c.lastSeen = r.now()
	}
}

// SetName records the client's display name. No-op for unknown identities.
func (r *Registry) SetName(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.name = name
	}
}

// SetPosition records the client's last reported position with the current
// time. No-op for unknown identities.
func (r *Registry) SetPosition(id string, pos protocol.Vector3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		p := pos
		c.position = &p
		c.positionAt = r.now()
	}
}

// SetLatency records the client's last measured round-trip latency in
// milliseconds. No-op for unknown identities.
func (r *Registry) SetLatency(id string, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.latencyMS = ms
		c.hasLatency = true
	}
}

// Remove closes the client's control connection and deletes the record.
// Close errors are ignored; the connection may already be half-closed.
//
// Postcondition: The identity is no longer registered. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = c.conn.Close()
	r.logger.Info("client removed", zap.String("client_id", id))
}

// Conn returns the control connection handle for a registered client. The
// handle is retrieved under the lock but written to outside it; the Conn's
// own write mutex serializes the actual send.
func (r *Registry) Conn(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// DatagramAddr returns the client's data-channel address, if one has been
// observed.
func (r *Registry) DatagramAddr(id string) (*net.UDPAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.udpAddr == nil {
		return nil, false
	}
	return c.udpAddr, true
}

// Contains reports whether the identity is currently registered.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[id]
	return ok
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Snapshot returns read-only copies of all sessions, ordered by identity.
//
// Postcondition: Mutating the result never affects registry state.
func (r *Registry) Snapshot() []SessionView {
	r.mu.Lock()
	views := make([]SessionView, 0, len(r.clients))
	for _, c := range r.clients {
		v := SessionView{
			ID:          c.id,
			PublicIP:    c.publicIP,
			PublicPort:  c.publicPort,
			LastSeen:    c.lastSeen,
			ConnectedAt: c.connectedAt,
			Name:        c.name,
			LatencyMS:   c.latencyMS,
			HasLatency:  c.hasLatency,
			PositionAt:  c.positionAt,
		}
		if c.udpAddr != nil {
			addr := *c.udpAddr
			v.UDPAddr = &addr
		}
		if c.position != nil {
			pos := *c.position
			v.Position = &pos
		}
		views = append(views, v)
	}
	r.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		return clientOrdinal(views[i].ID) < clientOrdinal(views[j].ID)
	})
	return views
}

// Stale returns the identities whose last-seen time is older than timeout.
func (r *Registry) Stale(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var stale []string
	for id, c := range r.clients {
		if now.Sub(c.lastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// clientOrdinal extracts the counter from a "client_N" identity for stable
// registration-order sorting.
func clientOrdinal(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "client_"))
	if err != nil {
		return 0
	}
	return n
}
