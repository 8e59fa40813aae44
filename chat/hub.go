package chat

import (
	"log/slog"
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this many batches behind starts losing them.
const subscriberBuffer = 16

type subscriber struct {
	ch   chan Batch
	gone bool
}

// Hub fans batches out to per-room subscriber lists. Subscribers get a
// receive channel plus a disposer; disposing twice is safe. When the last
// subscriber of a room leaves, onEmpty fires (outside the hub lock) so the
// owner can stop polling the room.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string][]*subscriber
	onEmpty func(roomID string)
}

func NewHub(onEmpty func(roomID string)) *Hub {
	return &Hub{rooms: make(map[string][]*subscriber), onEmpty: onEmpty}
}

// Subscribe adds a subscriber to roomID and returns its channel and disposer.
// The channel is closed exactly once: by the disposer or by CloseRoom.
func (h *Hub) Subscribe(roomID string) (<-chan Batch, func()) {
	sub := &subscriber{ch: make(chan Batch, subscriberBuffer)}
	h.mu.Lock()
	h.rooms[roomID] = append(h.rooms[roomID], sub)
	h.mu.Unlock()

	dispose := func() {
		h.mu.Lock()
		if sub.gone {
			h.mu.Unlock()
			return
		}
		sub.gone = true
		close(sub.ch)
		subs := h.rooms[roomID]
		for i, s := range subs {
			if s == sub {
				h.rooms[roomID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		empty := len(h.rooms[roomID]) == 0
		if empty {
			delete(h.rooms, roomID)
		}
		h.mu.Unlock()
		if empty && h.onEmpty != nil {
			h.onEmpty(roomID)
		}
	}
	return sub.ch, dispose
}

// Publish delivers a batch to every subscriber of roomID. Delivery is
// best-effort once a subscriber's buffer fills: that subscriber misses the
// batch instead of stalling publication to the rest of the room. The SSE
// writer drains its channel continuously, so in practice the buffer only
// fills when a client stops reading its connection entirely.
func (h *Hub) Publish(roomID string, b Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.rooms[roomID] {
		select {
		case sub.ch <- b:
		default:
			slog.Warn("dropping batch for slow subscriber", slog.String("room", roomID))
		}
	}
}

// CloseRoom sends a terminal error batch to every subscriber of roomID and
// closes their channels. Disposers held by those subscribers become no-ops.
// onEmpty does not fire; the caller is the room's owner.
func (h *Hub) CloseRoom(roomID, code string) {
	h.mu.Lock()
	subs := h.rooms[roomID]
	delete(h.rooms, roomID)
	for _, sub := range subs {
		if sub.gone {
			continue
		}
		sub.gone = true
		select {
		case sub.ch <- Batch{Err: code, Timestamp: time.Now().UTC()}:
		default:
		}
		close(sub.ch)
	}
	h.mu.Unlock()
}

// SubscriberCount returns the number of live subscribers for roomID.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// RoomCounts returns subscriber counts per room, for the status endpoint.
func (h *Hub) RoomCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make(map[string]int, len(h.rooms))
	for id, subs := range h.rooms {
		counts[id] = len(subs)
	}
	return counts
}
