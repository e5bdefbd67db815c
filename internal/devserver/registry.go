package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomTTL is how long an empty or finished room is kept around.
const RoomTTL = 10 * time.Minute

type Registry struct {
	rooms map[uuid.UUID]*Room
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uuid.UUID]*Room)}
}

func (rg *Registry) Create() *Room {
	r := NewRoom()
	rg.mu.Lock()
	rg.rooms[r.ID] = r
	rg.mu.Unlock()
	return r
}

func (rg *Registry) Get(id uuid.UUID) (*Room, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	r, ok := rg.rooms[id]
	return r, ok
}

func (rg *Registry) Delete(id uuid.UUID) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	delete(rg.rooms, id)
}

// Rooms returns a point-in-time copy of every room.
func (rg *Registry) Rooms() []*Room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	out := make([]*Room, 0, len(rg.rooms))
	for _, r := range rg.rooms {
		out = append(out, r)
	}
	return out
}

// Sweep removes rooms older than RoomTTL that are empty or finished and
// returns how many went.
func (rg *Registry) Sweep(now time.Time) int {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	n := 0
	for id, r := range rg.rooms {
		if now.Sub(r.CreatedAt) <= RoomTTL {
			continue
		}
		if r.Empty() || r.State() == StateFinished {
			delete(rg.rooms, id)
			n++
		}
	}
	return n
}
