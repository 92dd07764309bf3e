package app

import (
	"sync"

	"classroom-live-service/internal/domain"
)

// Presence tracks which connections are in which room and the display name
// of each connection. It owns these maps exclusively; no other component
// mutates them. All operations are idempotent with respect to absent
// entries: leaving a room you are not in is a no-op.
type Presence struct {
	mu    sync.RWMutex
	rooms map[string][]string
	names map[string]string
}

func NewPresence() *Presence {
	return &Presence{
		rooms: make(map[string][]string),
		names: make(map[string]string),
	}
}

// Join adds the connection to the room's member list, records its display
// name, and returns the other members already present.
func (p *Presence) Join(roomID, connID, name string) []domain.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.names[connID] = name
	members := p.rooms[roomID]
	present := false
	for _, id := range members {
		if id == connID {
			present = true
			break
		}
	}
	if !present {
		p.rooms[roomID] = append(members, connID)
	}

	others := make([]domain.Peer, 0, len(members))
	for _, id := range p.rooms[roomID] {
		if id == connID {
			continue
		}
		others = append(others, domain.Peer{ID: id, Name: p.nameLocked(id)})
	}
	return others
}

// Leave removes the connection from the room and reports whether it was a
// member. The room entry is dropped entirely once its last member leaves.
func (p *Presence) Leave(roomID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.rooms[roomID]
	if !ok {
		return false
	}
	for i, id := range members {
		if id != connID {
			continue
		}
		members = append(members[:i], members[i+1:]...)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		} else {
			p.rooms[roomID] = members
		}
		return true
	}
	return false
}

// Forget drops the connection's display name. Called on disconnect.
func (p *Presence) Forget(connID string) {
	p.mu.Lock()
	delete(p.names, connID)
	p.mu.Unlock()
}

// ClearRoom removes every member from the room at once, without touching
// display names. Used after the terminal session broadcast.
func (p *Presence) ClearRoom(roomID string) {
	p.mu.Lock()
	delete(p.rooms, roomID)
	p.mu.Unlock()
}

// Participants returns the live roster of the room in join order.
func (p *Presence) Participants(roomID string) []domain.Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	members := p.rooms[roomID]
	peers := make([]domain.Peer, 0, len(members))
	for _, id := range members {
		peers = append(peers, domain.Peer{ID: id, Name: p.nameLocked(id)})
	}
	return peers
}

// Members returns the connection ids currently in the room.
func (p *Presence) Members(roomID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	members := p.rooms[roomID]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

func (p *Presence) nameLocked(connID string) string {
	if name, ok := p.names[connID]; ok && name != "" {
		return name
	}
	return domain.GuestName
}
