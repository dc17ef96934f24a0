package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"

	"github.com/rs/zerolog/log"
)

// Subscriber is one connection listening to room topics.
type Subscriber interface {
	ID() string
	// Enqueue must not block. It returns false when the subscriber is gone
	// or cannot keep up.
	Enqueue(f Frame) bool
	Close()
}

// Gate reports whether a room is open for subscriptions.
type Gate interface {
	ValidateOpen(ctx context.Context, roomID string) error
}

// SnapshotSource hands out a room snapshot while holding off concurrent publishes.
type SnapshotSource interface {
	Catchup(roomID string, fn func(live.Snapshot)) error
}

// Hub fans room events out to subscribers. Publishes for one room arrive
// serialized by the arena, and each subscriber drains its queue in order,
// so every subscriber sees a room's events in publish order.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber
	gate   Gate
	source SnapshotSource
	seq    atomic.Uint64
}

func NewHub(gate Gate, source SnapshotSource) *Hub {
	return &Hub{
		topics: make(map[string]map[string]Subscriber),
		gate:   gate,
		source: source,
	}
}

// Subscribe joins sub to the room topic and sends it the current snapshot.
// Closed or unknown rooms get an error frame and no subscription.
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber, roomID string) error {
	if err := h.gate.ValidateOpen(ctx, roomID); err != nil {
		h.sendError(sub, roomID, err)
		return err
	}
	err := h.source.Catchup(roomID, func(snap live.Snapshot) {
		h.mu.Lock()
		subs, ok := h.topics[roomID]
		if !ok {
			subs = make(map[string]Subscriber)
			h.topics[roomID] = subs
		}
		subs[sub.ID()] = sub
		h.mu.Unlock()

		f, err := encodeFrame(h.seq.Add(1), Envelope{Event: EventStateUpdate, RoomID: roomID, Data: snap})
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("encode catch-up snapshot failed")
			return
		}
		sub.Enqueue(f)
	})
	if err != nil {
		h.sendError(sub, roomID, err)
		return err
	}
	log.Debug().Str("room_id", roomID).Str("conn_id", sub.ID()).Msg("subscribed")
	return nil
}

// errorCode maps a subscribe failure to its client-facing code and HTTP status.
func errorCode(cause error) (string, int) {
	if errors.Is(cause, registry.ErrRoomNotFound) || errors.Is(cause, live.ErrRoomClosed) {
		return "room_not_found", http.StatusNotFound
	}
	return "internal_error", http.StatusInternalServerError
}

func (h *Hub) sendError(sub Subscriber, roomID string, cause error) {
	code, _ := errorCode(cause)
	f, err := encodeFrame(h.seq.Add(1), Envelope{Event: EventError, RoomID: roomID, Data: ErrorData{Error: code}})
	if err == nil {
		sub.Enqueue(f)
	}
}

func (h *Hub) Unsubscribe(subID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(subID, roomID)
}

// UnsubscribeAll drops subID from every topic, used on disconnect.
func (h *Hub) UnsubscribeAll(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.topics {
		h.removeLocked(subID, roomID)
	}
}

func (h *Hub) removeLocked(subID, roomID string) {
	subs, ok := h.topics[roomID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(h.topics, roomID)
	}
}

// Subscribers counts the subscribers of a room topic.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[roomID])
}

// PublishState implements live.Publisher.
func (h *Hub) PublishState(roomID string, snap live.Snapshot) {
	h.Publish(roomID, EventStateUpdate, snap)
}

// PublishSettled sends the final results and closes the topic.
func (h *Hub) PublishSettled(roomID string, payload any) {
	h.Publish(roomID, EventRoomSettled, payload)
	h.mu.Lock()
	delete(h.topics, roomID)
	h.mu.Unlock()
}

func (h *Hub) Publish(roomID, kind string, payload any) {
	f, err := encodeFrame(h.seq.Add(1), Envelope{Event: kind, RoomID: roomID, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", kind).Msg("encode event failed")
		return
	}

	var dropped []Subscriber
	h.mu.RLock()
	for _, sub := range h.topics[roomID] {
		if !sub.Enqueue(f) {
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()
	metricEventsPublished.Add(1)

	for _, sub := range dropped {
		log.Warn().Str("room_id", roomID).Str("conn_id", sub.ID()).Msg("subscriber dropped: send queue full")
		metricSubscribersDropped.Add(1)
		h.UnsubscribeAll(sub.ID())
		sub.Close()
	}
}

// CloseAll disconnects every subscriber. Used on shutdown so streaming
// handlers return.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	seen := make(map[string]Subscriber)
	for _, subs := range h.topics {
		for id, sub := range subs {
			seen[id] = sub
		}
	}
	h.topics = make(map[string]map[string]Subscriber)
	h.mu.Unlock()
	for _, sub := range seen {
		sub.Close()
	}
}
