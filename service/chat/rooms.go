package chat

import (
	"context"
	"sync"

	"github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/model"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
)

// Room names. A personal room carries exactly one user's connections; a
// conversation room mirrors the currently-connected members of a
// conversation.
func UserRoom(userID string) string         { return "user:" + userID }
func ConversationRoom(convID string) string { return "conv:" + convID }

// RoomManager tracks which connections belong to which rooms and performs
// the authorization check before admitting a connection to a conversation
// room. Broadcast primitives perform no authorization; callers must have
// authorized the operation already.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client   // room -> connID -> client
	joined map[string]map[string]struct{}  // connID -> set of room names

	store ChatStore
	teams TeamStore
}

func NewRoomManager(store ChatStore, teams TeamStore) *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]map[string]*Client),
		joined: make(map[string]map[string]struct{}),
		store:  store,
		teams:  teams,
	}
}

// JoinPersonalRoom is unconditional; every authenticated connection lands in
// its own personal room right after the handshake.
func (m *RoomManager) JoinPersonalRoom(c *Client) {
	m.join(UserRoom(c.UserID), c)
}

// JoinConversation admits the connection to the conversation room after
// authorization: the user must be a listed participant, or an active member
// of the conversation's project team. Returns the conversation on success.
func (m *RoomManager) JoinConversation(ctx context.Context, c *Client, convID string) (*model.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errs.ErrConversationNotFound
	}
	if !conv.HasParticipant(c.UserID) {
		allowed := false
		if conv.ProjectID != "" {
			allowed, err = m.teams.IsActiveMember(ctx, conv.ProjectID, c.UserID)
			if err != nil {
				return nil, err
			}
		}
		if !allowed {
			return nil, errs.ErrNotParticipant
		}
	}
	m.join(ConversationRoom(convID), c)
	return conv, nil
}

// LeaveConversation removes the membership; the mutation always proceeds
// regardless of join/leave throttling.
func (m *RoomManager) LeaveConversation(c *Client, convID string) {
	m.leave(ConversationRoom(convID), c.ConnID)
}

// RemoveConnection purges the connection from every room it had joined,
// without emitting leave broadcasts. Called on disconnect.
func (m *RoomManager) RemoveConnection(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for room := range m.joined[c.ConnID] {
		if members := m.rooms[room]; members != nil {
			delete(members, c.ConnID)
			if len(members) == 0 {
				delete(m.rooms, room)
			}
		}
	}
	delete(m.joined, c.ConnID)
}

// Evict empties a room and returns the clients that were in it.
func (m *RoomManager) Evict(room string) []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.rooms[room]
	if len(members) == 0 {
		delete(m.rooms, room)
		return nil
	}
	out := make([]*Client, 0, len(members))
	for connID, c := range members {
		out = append(out, c)
		if set := m.joined[connID]; set != nil {
			delete(set, room)
		}
	}
	delete(m.rooms, room)
	return out
}

// Members returns the room's current clients.
func (m *RoomManager) Members(room string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// MembersExcept returns the room's clients minus one connection.
func (m *RoomManager) MembersExcept(room, exceptConnID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[room]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for connID, c := range members {
		if connID == exceptConnID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// InRoom reports whether the connection currently belongs to the room.
func (m *RoomManager) InRoom(room, connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][connID]
	return ok
}

func (m *RoomManager) join(room string, c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		m.rooms[room] = members
	}
	members[c.ConnID] = c

	set := m.joined[c.ConnID]
	if set == nil {
		set = make(map[string]struct{})
		m.joined[c.ConnID] = set
	}
	set[room] = struct{}{}
}

func (m *RoomManager) leave(room, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members := m.rooms[room]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if set := m.joined[connID]; set != nil {
		delete(set, room)
	}
}
