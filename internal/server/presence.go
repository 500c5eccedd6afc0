package server

import "sync"

// RoomRef identifies the room a user is viewing. The zero value means the
// user has not entered a room yet. MainRoom is the public room every
// authenticated user belongs to; it has no row in the room store.
type RoomRef struct {
	main bool
	id   string
}

var MainRoom = RoomRef{main: true}

// PrivateRoom references a stored room by its external id.
func PrivateRoom(id string) RoomRef {
	return RoomRef{id: id}
}

func (r RoomRef) IsMain() bool { return r.main }

func (r RoomRef) IsNone() bool { return !r.main && r.id == "" }

// Id returns the room's external id; empty for the main room.
func (r RoomRef) Id() string { return r.id }

// ParseRoomRef maps a wire room id to a RoomRef. An empty id or the literal
// "main" selects the main room.
func ParseRoomRef(id string) RoomRef {
	if id == "" || id == "main" {
		return MainRoom
	}
	return PrivateRoom(id)
}

func (r RoomRef) String() string {
	switch {
	case r.main:
		return "main"
	case r.id == "":
		return "none"
	default:
		return r.id
	}
}

type presenceEntry struct {
	current  RoomRef
	previous RoomRef
}

// presenceTable tracks which room each user currently occupies and the room
// they occupied before. Entries survive disconnects so a reconnecting user
// resumes their last room context; broadcasts filter by connection liveness.
type presenceTable struct {
	mu      sync.Mutex
	entries map[int]presenceEntry
}

func newPresenceTable() *presenceTable {
	return &presenceTable{entries: make(map[int]presenceEntry)}
}

// enterRoom is the single mutation point for room transitions. The old
// current room shifts into previous.
func (p *presenceTable) enterRoom(userId int, room RoomRef) presenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := p.entries[userId]
	entry.previous = entry.current
	entry.current = room
	p.entries[userId] = entry

	return entry
}

func (p *presenceTable) snapshotFor(userId int) (presenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[userId]
	return entry, ok
}

// occupantsOf returns the ids of all users whose current room is room,
// snapshotted under the table lock.
func (p *presenceTable) occupantsOf(room RoomRef) []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []int
	for userId, entry := range p.entries {
		if entry.current == room {
			ids = append(ids, userId)
		}
	}

	return ids
}

func (p *presenceTable) remove(userId int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.entries, userId)
}
