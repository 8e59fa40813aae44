package chat

import (
	"sync"
	"time"

	"github.com/streamsense-live/backend/telemetry"
)

// Conn is the per-room polling state. It is created by the scheduler when the
// first subscriber arrives and mutated only from the scheduler's tick
// goroutine afterwards.
type Conn struct {
	LiveChatID string
	UserID     string

	NextPageToken     string
	LastSeenMessageID string
	PollInterval      time.Duration
	LastPollAt        time.Time
	QuotaErrors       int
}

// Registry maps room ids to their polling state. The map is guarded; Conn
// field access is serialized by the scheduler.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Conn)}
}

// Get returns the state for a room or nil.
func (r *Registry) Get(roomID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Put registers state for a room, replacing any previous entry.
func (r *Registry) Put(roomID string, c *Conn) {
	r.mu.Lock()
	r.rooms[roomID] = c
	n := len(r.rooms)
	r.mu.Unlock()
	telemetry.SetActiveRooms(n)
}

// Delete removes a room. Deleting an absent room is a no-op.
func (r *Registry) Delete(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	n := len(r.rooms)
	r.mu.Unlock()
	telemetry.SetActiveRooms(n)
}

// Rooms returns a snapshot of the registered room ids.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
