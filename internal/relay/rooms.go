package relay

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// Room membership failures reported to the protocol layer.
var (
	// ErrRoomNotFound means the room id does not exist (or no longer exists;
	// ids are never reused).
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull means the room is at its member limit.
	ErrRoomFull = errors.New("room is full")
)

const (
	defaultRoomName   = "Game Room"
	defaultMaxPlayers = 4
)

// SendFunc delivers a control-channel message to one client. Implementations
// must tolerate unknown identities and isolate per-recipient failures.
type SendFunc func(clientID string, v any)

// room is the manager's record for one game session.
type room struct {
	id         string
	name       string
	hostID     string
	players    []string // join order, no duplicates
	maxPlayers int
	started    bool
}

// memberIndex returns the position of clientID in the member list, or -1.
func (r *room) memberIndex(clientID string) int {
	for i, p := range r.players {
		if p == clientID {
			return i
		}
	}
	return -1
}

// JoinResult is the successful outcome of a join, echoed to the joiner.
type JoinResult struct {
	RoomID  string
	HostID  string
	Players []string
	Started bool
}

// notification is one pending peer send, computed under the rooms lock and
// delivered after it is released.
type notification struct {
	to      string
	payload any
}

// Rooms owns room lifecycle: creation, membership, host authority, and game
// start. All methods are safe for concurrent use. The rooms lock is never
// held across a network send and is never nested with the registry lock.
type Rooms struct {
	mu     sync.Mutex
	rooms  map[string]*room
	order  []string // creation order
	nextID int
	spawns *Allocator
	send   SendFunc
	logger *zap.Logger
}

// NewRooms creates an empty room manager.
//
// Precondition: spawns, send, and logger must be non-nil.
func NewRooms(spawns *Allocator, send SendFunc, logger *zap.Logger) *Rooms {
	return &Rooms{
		rooms:  make(map[string]*room),
		nextID: 1,
		spawns: spawns,
		send:   send,
		logger: logger,
	}
}

// Host creates a room with the client as sole member and host. If the client
// already hosts a room, that room's id is returned unchanged and no second
// room is created.
//
// Postcondition: Returns a room id whose room has the client as host.
func (rm *Rooms) Host(clientID, name string, maxPlayers int) string {
	if name == "" {
		name = defaultRoomName
	}
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, id := range rm.order {
		if rm.rooms[id].hostID == clientID {
			return id
		}
	}

	id := fmt.Sprintf("room_%d", rm.nextID)
	rm.nextID++
	rm.rooms[id] = &room{
		id:         id,
		name:       name,
		hostID:     clientID,
		players:    []string{clientID},
		maxPlayers: maxPlayers,
	}
	rm.order = append(rm.order, id)

	rm.logger.Info("room created",
		zap.String("room_id", id),
		zap.String("host_id", clientID),
		zap.String("name", name),
		zap.Int("max_players", maxPlayers),
	)
	return id
}

// List returns summaries of all rooms in creation order.
func (rm *Rooms) List() []protocol.RoomSummary {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	summaries := make([]protocol.RoomSummary, 0, len(rm.order))
	for _, id := range rm.order {
		r := rm.rooms[id]
		summaries = append(summaries, protocol.RoomSummary{
			RoomID:      r.id,
			Name:        r.name,
			PlayerCount: len(r.players),
			MaxPlayers:  r.maxPlayers,
			HostID:      r.hostID,
		})
	}
	return summaries
}

// Join adds the client to the room. The capacity check comes first and
// applies to current members too: an at-capacity room rejects every JOIN,
// including a member re-joining. Below capacity, re-joining is a no-op that
// still succeeds. Every existing member other than the joiner is notified
// with PLAYER_JOINED, in member-list order.
//
// Postcondition: Returns the membership view for the joiner, ErrRoomNotFound,
// or ErrRoomFull (membership unchanged on either error).
func (rm *Rooms) Join(roomID, clientID string) (JoinResult, error) {
	rm.mu.Lock()
	r, ok := rm.rooms[roomID]
	if !ok {
		rm.mu.Unlock()
		return JoinResult{}, ErrRoomNotFound
	}

	if len(r.players) >= r.maxPlayers {
		rm.mu.Unlock()
		return JoinResult{}, ErrRoomFull
	}
	if r.memberIndex(clientID) < 0 {
		r.players = append(r.players, clientID)
	}

	result := JoinResult{
		RoomID:  r.id,
		HostID:  r.hostID,
		Players: append([]string(nil), r.players...),
		Started: r.started,
	}
	var notes []notification
	for _, p := range r.players {
		if p != clientID {
			notes = append(notes, notification{to: p, payload: protocol.NewPlayerJoined(clientID)})
		}
	}
	rm.mu.Unlock()

	rm.deliver(notes)
	rm.logger.Info("client joined room",
		zap.String("room_id", roomID),
		zap.String("client_id", clientID),
	)
	return result, nil
}

// Leave removes the client from the room's membership and notifies remaining
// members. The client's spawn slot is released. If the departing client was
// the host, or membership becomes empty, the room and its spawn assignment
// are deleted.
func (rm *Rooms) Leave(roomID, clientID string) {
	rm.mu.Lock()
	notes := rm.leaveLocked(roomID, clientID)
	rm.mu.Unlock()
	rm.deliver(notes)
}

// leaveLocked removes the client from one room and returns the pending peer
// notifications. Caller must hold rm.mu.
func (rm *Rooms) leaveLocked(roomID, clientID string) []notification {
	r, ok := rm.rooms[roomID]
	if !ok {
		return nil
	}
	i := r.memberIndex(clientID)
	if i < 0 {
		return nil
	}
	r.players = append(r.players[:i], r.players[i+1:]...)
	rm.spawns.Release(roomID, clientID)

	var notes []notification
	for _, p := range r.players {
		notes = append(notes, notification{to: p, payload: protocol.NewPlayerDisconnected(clientID)})
	}

	if clientID == r.hostID || len(r.players) == 0 {
		rm.deleteLocked(roomID)
	}
	rm.logger.Info("client left room",
		zap.String("room_id", roomID),
		zap.String("client_id", clientID),
	)
	return notes
}

// Start marks the room started and assigns each current member a spawn slot.
// Only the host may start; any other caller is ignored with no state change
// and no notification. Each member receives GAME_STARTED with the full player
// list and its own slot, in member-list order.
func (rm *Rooms) Start(roomID, clientID string) {
	rm.mu.Lock()
	r, ok := rm.rooms[roomID]
	if !ok {
		rm.mu.Unlock()
		return
	}
	if r.hostID != clientID {
		rm.mu.Unlock()
		rm.logger.Debug("start ignored: caller is not host",
			zap.String("room_id", roomID),
			zap.String("client_id", clientID),
		)
		return
	}

	r.started = true
	players := append([]string(nil), r.players...)
	notes := make([]notification, 0, len(players))
	for _, p := range players {
		spawn := rm.spawns.Assign(roomID, p)
		notes = append(notes, notification{to: p, payload: protocol.NewGameStarted(players, spawn)})
	}
	rm.mu.Unlock()

	rm.deliver(notes)
	rm.logger.Info("game started",
		zap.String("room_id", roomID),
		zap.Int("players", len(players)),
	)
}

// RemoveEverywhere performs the equivalent of Leave for every room containing
// the client. Used by the eviction and kick paths.
func (rm *Rooms) RemoveEverywhere(clientID string) {
	rm.mu.Lock()
	var notes []notification
	for _, roomID := range append([]string(nil), rm.order...) {
		if r, ok := rm.rooms[roomID]; ok && r.memberIndex(clientID) >= 0 {
			notes = append(notes, rm.leaveLocked(roomID, clientID)...)
		}
	}
	rm.mu.Unlock()
	rm.deliver(notes)
}

// Players returns the room's member list in join order.
//
// Postcondition: Returns (members, true), or (nil, false) for an unknown room.
func (rm *Rooms) Players(roomID string) ([]string, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r, ok := rm.rooms[roomID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), r.players...), true
}

// Membership returns the first room (in creation order) containing the
// client and whether the client hosts it.
func (rm *Rooms) Membership(clientID string) (roomID string, host bool, ok bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, id := range rm.order {
		if r := rm.rooms[id]; r.memberIndex(clientID) >= 0 {
			return id, r.hostID == clientID, true
		}
	}
	return "", false, false
}

// Count returns the number of active rooms.
func (rm *Rooms) Count() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.rooms)
}

// deleteLocked removes a room and its spawn assignment. Caller must hold rm.mu.
func (rm *Rooms) deleteLocked(roomID string) {
	delete(rm.rooms, roomID)
	for i, id := range rm.order {
		if id == roomID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	rm.spawns.ReleaseRoom(roomID)
	rm.logger.Info("room deleted", zap.String("room_id", roomID))
}

// deliver sends pending notifications after the rooms lock is released. A
// failed send to one peer never aborts delivery to the others; SendFunc
// swallows per-recipient errors.
func (rm *Rooms) deliver(notes []notification) {
	for _, n := range notes {
		rm.send(n.to, n.payload)
	}
}
