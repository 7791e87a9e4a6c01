// Package room tracks which connections occupy each space, the direct calls
// running between them, and delivers events to room members.
//
// Rooms are keyed by space id and members by connection id, so callers and
// tests construct state directly through the Registry API. Every mutation of
// one room happens under that room's lock; sends never block, so fan-out may
// run after the lock is released without risking a stalled room.
package room

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/gospace/internal/protocol"
)

// Member is a joined connection as seen by the registry.
type Member interface {
	// ID is the connection id, unique for the lifetime of the process.
	ID() string
	UserID() string
	Position() (x, y int)
	// Active reports false once the connection has begun tearing down.
	Active() bool
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
	Close()
}

// Position is a point-in-time view of one active member.
type Position struct {
	ConnID string
	UserID string
	X      int
	Y      int
}

// Registry owns all live rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.RWMutex
	closed  bool
	members map[string]Member
	order   []string
	calls   map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func newRoom() *room {
	return &room{
		members: make(map[string]Member),
		calls:   make(map[string]string),
	}
}

// AdmitFunc runs under the room lock while a member is being added.
// occupancy is the member count before insertion, peers are the other
// members in join order and calls are the active direct calls.
type AdmitFunc func(occupancy int, peers []Member, calls []protocol.CallPair)

// AddUser inserts m into the room for spaceID, creating the room if needed.
// Reading the occupancy and inserting happen atomically, so concurrent joins
// observe distinct occupancies. admit may be nil.
func (r *Registry) AddUser(spaceID string, m Member, admit AdmitFunc) {
	for {
		rm := r.getOrCreate(spaceID)

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}

		occupancy := len(rm.members)
		if admit != nil {
			admit(occupancy, rm.snapshotLocked(), rm.callsLocked())
		}
		if _, exists := rm.members[m.ID()]; !exists {
			rm.order = append(rm.order, m.ID())
		}
		rm.members[m.ID()] = m
		count := len(rm.members)
		rm.mu.Unlock()

		log.Info().Str("space", spaceID).Str("conn", m.ID()).Str("user", m.UserID()).
			Int("members", count).Msg("member added")
		return
	}
}

// RemoveUser removes the member with connID from the room. Removing an
// absent member is a no-op. Empty rooms are dropped.
func (r *Registry) RemoveUser(spaceID, connID string) {
	rm := r.get(spaceID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	if _, ok := rm.members[connID]; !ok {
		rm.mu.Unlock()
		return
	}
	delete(rm.members, connID)
	for i, id := range rm.order {
		if id == connID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	count := len(rm.members)
	rm.mu.Unlock()

	log.Info().Str("space", spaceID).Str("conn", connID).Int("members", count).Msg("member removed")

	if count == 0 {
		r.dropIfEmpty(spaceID, rm)
	}
}

// Broadcast delivers msg to every member of the room except senderID.
func (r *Registry) Broadcast(spaceID string, msg []byte, senderID string) {
	rm := r.get(spaceID)
	if rm == nil {
		return
	}
	rm.mu.RLock()
	targets := rm.snapshotLocked()
	rm.mu.RUnlock()

	for _, m := range targets {
		if m.ID() == senderID {
			continue
		}
		deliver(spaceID, m, msg)
	}
}

// BroadcastToAll delivers msg to every member of the room.
func (r *Registry) BroadcastToAll(spaceID string, msg []byte) {
	r.Broadcast(spaceID, msg, "")
}

// FindByUserID returns the active member of the room bound to userID.
func (r *Registry) FindByUserID(spaceID, userID string) (Member, bool) {
	rm := r.get(spaceID)
	if rm == nil || userID == "" {
		return nil, false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	for _, id := range rm.order {
		m := rm.members[id]
		if m.UserID() == userID && m.Active() {
			return m, true
		}
	}
	return nil, false
}

// SendToUser delivers msg to the member bound to userID and reports whether
// a recipient was found.
func (r *Registry) SendToUser(spaceID, userID string, msg []byte) bool {
	m, ok := r.FindByUserID(spaceID, userID)
	if !ok {
		return false
	}
	deliver(spaceID, m, msg)
	return true
}

// Occupancy returns the number of members in the room.
func (r *Registry) Occupancy(spaceID string) int {
	rm := r.get(spaceID)
	if rm == nil {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// Spaces returns the ids of all non-empty rooms.
func (r *Registry) Spaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the positions of every active member in join order.
func (r *Registry) Snapshot(spaceID string) []Position {
	rm := r.get(spaceID)
	if rm == nil {
		return nil
	}
	rm.mu.RLock()
	members := rm.snapshotLocked()
	rm.mu.RUnlock()

	positions := make([]Position, 0, len(members))
	for _, m := range members {
		if !m.Active() {
			continue
		}
		x, y := m.Position()
		positions = append(positions, Position{ConnID: m.ID(), UserID: m.UserID(), X: x, Y: y})
	}
	return positions
}

// Stats reports the number of rooms and members across all rooms.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms = len(r.rooms)
	for _, rm := range r.rooms {
		rm.mu.RLock()
		members += len(rm.members)
		rm.mu.RUnlock()
	}
	return rooms, members
}

func (r *Registry) get(spaceID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[spaceID]
}

func (r *Registry) getOrCreate(spaceID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[spaceID]
	if !ok {
		rm = newRoom()
		r.rooms[spaceID] = rm
	}
	return rm
}

func (r *Registry) dropIfEmpty(spaceID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if len(rm.members) != 0 || r.rooms[spaceID] != rm {
		return
	}
	rm.closed = true
	delete(r.rooms, spaceID)
	log.Debug().Str("space", spaceID).Msg("room removed")
}

func (rm *room) snapshotLocked() []Member {
	members := make([]Member, 0, len(rm.order))
	for _, id := range rm.order {
		members = append(members, rm.members[id])
	}
	return members
}

func deliver(spaceID string, m Member, msg []byte) {
	if m.Send(msg) {
		return
	}
	log.Warn().Str("space", spaceID).Str("conn", m.ID()).Msg("send buffer full; closing connection")
	m.Close()
}
