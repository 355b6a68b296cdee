package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/syl3n7/Ultimate-Car-Racing/internal/protocol"
)

// SlotCount is the number of predefined spawn positions per room.
const SlotCount = 20

// spawnTable holds the track-aligned garage positions, shared read-only by
// every room.
var spawnTable = [SlotCount]protocol.Vector3{
	{X: 66, Y: -2, Z: 0.8}, {X: 60, Y: -2, Z: 0.8}, {X: 54, Y: -2, Z: 0.8},
	{X: 47, Y: -2, Z: 0.8}, {X: 41, Y: -2, Z: 0.8}, {X: 35, Y: -2, Z: 0.8},
	{X: 28, Y: -2, Z: 0.8}, {X: 22, Y: -2, Z: 0.8}, {X: 16, Y: -2, Z: 0.8},
	{X: 9, Y: -2, Z: 0.8}, {X: 3, Y: -2, Z: 0.8}, {X: -3, Y: -2, Z: 0.8},
	{X: -9, Y: -2, Z: 0.8}, {X: -15, Y: -2, Z: 0.8}, {X: -22, Y: -2, Z: 0.8},
	{X: -28, Y: -2, Z: 0.8}, {X: -34, Y: -2, Z: 0.8}, {X: -41, Y: -2, Z: 0.8},
	{X: -47, Y: -2, Z: 0.8}, {X: -54, Y: -2, Z: 0.8},
}

// SlotPosition returns the spawn coordinate for a slot index.
//
// Precondition: index must be in [0, SlotCount).
func SlotPosition(index int) protocol.Vector3 {
	return spawnTable[index]
}

// Allocator assigns spawn slots to clients within rooms. Pure in-memory map
// operations; no I/O.
type Allocator struct {
	mu     sync.Mutex
	byRoom map[string]map[int]string // roomID → slot index → client id
	logger *zap.Logger
}

// NewAllocator creates an empty spawn allocator.
//
// Precondition: logger must be non-nil.
func NewAllocator(logger *zap.Logger) *Allocator {
	return &Allocator{
		byRoom: make(map[string]map[int]string),
		logger: logger,
	}
}

// Assign gives the client the first unoccupied slot in the room. When all
// slots are taken, slot 0 is reused and a capacity warning is logged; two
// clients then share a position. That lossy fallback is deliberate and is
// not corrected further.
//
// Postcondition: Returns the assigned coordinate and slot index.
func (a *Allocator) Assign(roomID, clientID string) protocol.SpawnPosition {
	a.mu.Lock()
	defer a.mu.Unlock()

	occupied := a.byRoom[roomID]
	if occupied == nil {
		occupied = make(map[int]string)
		a.byRoom[roomID] = occupied
	}

	index := 0
	for index < SlotCount {
		if _, taken := occupied[index]; !taken {
			break
		}
		index++
	}
	if index >= SlotCount {
		index = 0
		a.logger.Warn("all spawn slots occupied, reusing slot 0",
			zap.String("room_id", roomID),
			zap.String("client_id", clientID),
		)
	}

	occupied[index] = clientID
	pos := spawnTable[index]
	return protocol.SpawnPosition{X: pos.X, Y: pos.Y, Z: pos.Z, Index: index}
}

// Release frees every slot the client occupies in the room (normally at most
// one).
func (a *Allocator) Release(roomID, clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	occupied, ok := a.byRoom[roomID]
	if !ok {
		return
	}
	for index, occupant := range occupied {
		if occupant == clientID {
			delete(occupied, index)
		}
	}
	if len(occupied) == 0 {
		delete(a.byRoom, roomID)
	}
}

// ReleaseRoom discards the room's entire assignment map.
func (a *Allocator) ReleaseRoom(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byRoom, roomID)
}

// AssignedIndex returns the slot the client occupies in the room, if any.
func (a *Allocator) AssignedIndex(roomID, clientID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for index, occupant := range a.byRoom[roomID] {
		if occupant == clientID {
			return index, true
		}
	}
	return 0, false
}
