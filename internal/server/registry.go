package server

import (
	"maps"
	"slices"
	"sync"
)

// Registry tracks which live connections are subscribed to which rooms.
//
// It is process-local and never persisted. Room ids are not checked against
// the store: any id is a valid join target. Rooms whose last subscriber
// leaves are pruned.
type Registry struct {
	mu          sync.Mutex
	rooms       map[uint]map[string]struct{}
	memberships map[string]map[uint]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[uint]map[string]struct{}),
		memberships: make(map[string]map[uint]struct{}),
	}
}

// Subscribe adds connID to roomID's subscriber set. Repeated calls are no-ops.
func (r *Registry) Subscribe(roomID uint, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.rooms[roomID]
	if !ok {
		subscribers = make(map[string]struct{})
		r.rooms[roomID] = subscribers
	}
	subscribers[connID] = struct{}{}

	joined, ok := r.memberships[connID]
	if !ok {
		joined = make(map[uint]struct{})
		r.memberships[connID] = joined
	}
	joined[roomID] = struct{}{}
}

// Unsubscribe removes connID from roomID's subscriber set if present.
func (r *Registry) Unsubscribe(roomID uint, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(roomID, connID)
}

// UnsubscribeAll removes connID from every room and returns the rooms it left.
func (r *Registry) UnsubscribeAll(connID string) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := slices.Sorted(maps.Keys(r.memberships[connID]))
	for _, roomID := range joined {
		r.removeLocked(roomID, connID)
	}
	delete(r.memberships, connID)
	return joined
}

// SubscribersOf returns a sorted copy of roomID's subscribers at call time.
func (r *Registry) SubscribersOf(roomID uint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.rooms[roomID]))
}

// RoomsOf returns the rooms connID is subscribed to, sorted.
func (r *Registry) RoomsOf(connID string) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.memberships[connID]))
}

// RoomCount returns the number of rooms with at least one subscriber.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// SubscriberCount returns the number of subscribers of roomID.
func (r *Registry) SubscriberCount(roomID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms[roomID])
}

func (r *Registry) removeLocked(roomID uint, connID string) {
	if subscribers, ok := r.rooms[roomID]; ok {
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(r.rooms, roomID)
		}
	}

	if joined, ok := r.memberships[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, connID)
		}
	}
}
