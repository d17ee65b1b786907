package chathub

import "sync"

// RoomTable tracks which connections are currently inside which chat room.
// Membership is per connection, not per user: a user with two tabs in the
// same chat counts as two members. Rooms exist implicitly from the first
// join; empty rooms are pruned lazily on the next lookup rather than
// eagerly, to avoid churn under rapid reconnect.
type RoomTable struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Client   // room id -> connection id -> client
	byConn map[string]map[string]struct{} // connection id -> room ids
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		rooms:  make(map[string]map[string]Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a room. Joining a room the connection is
// already in is a no-op. The hub does not verify chat membership here; the
// Directory Service enforces that at message-send time.
func (t *RoomTable) Join(c Client, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]Client)
		t.rooms[roomID] = members
	}
	members[c.GetID()] = c

	joined, ok := t.byConn[c.GetID()]
	if !ok {
		joined = make(map[string]struct{})
		t.byConn[c.GetID()] = joined
	}
	joined[roomID] = struct{}{}
}

// Leave removes a connection from a room. The empty member set, if any,
// stays behind for the lazy prune in MembersOf.
func (t *RoomTable) Leave(connID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if members, ok := t.rooms[roomID]; ok {
		delete(members, connID)
	}
	if joined, ok := t.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(t.byConn, connID)
		}
	}
}

// LeaveAll removes a connection from every room it joined and returns the
// room ids it left. Called on disconnect.
func (t *RoomTable) LeaveAll(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	joined, ok := t.byConn[connID]
	if !ok {
		return nil
	}
	delete(t.byConn, connID)

	left := make([]string, 0, len(joined))
	for roomID := range joined {
		if members, ok := t.rooms[roomID]; ok {
			delete(members, connID)
		}
		left = append(left, roomID)
	}
	return left
}

// MembersOf returns the current members of a room and prunes it when empty.
func (t *RoomTable) MembersOf(roomID string) []Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	if len(members) == 0 {
		delete(t.rooms, roomID)
		return nil
	}
	out := make([]Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Contains reports whether a connection is currently in a room.
func (t *RoomTable) Contains(connID, roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[roomID][connID]
	return ok
}
