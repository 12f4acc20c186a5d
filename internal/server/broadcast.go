package server

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// deliverer hands an encoded frame to one live connection. It reports false
// when the connection is gone or its outbound queue is full.
type deliverer interface {
	deliver(connID string, frame []byte) bool
}

// PublishFunc encodes an event once and queues it for every current
// subscriber of the room it was bound to. It returns the number of
// connections that accepted the frame.
type PublishFunc func(event string, data any) int

// Broadcaster fans events out to a room's subscribers.
//
// Publishes to the same room are serialized, so every subscriber observes a
// room's events in the order they were published. Rooms are independent of
// each other.
type Broadcaster struct {
	registry *Registry
	peers    deliverer
	log      logrus.FieldLogger

	mu    sync.Mutex
	locks map[uint]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewBroadcaster creates a Broadcaster that resolves subscribers through
// registry and delivers through peers.
func NewBroadcaster(registry *Registry, peers deliverer, log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		peers:    peers,
		log:      log.WithField("component", "broadcaster"),
		locks:    make(map[uint]*roomLock),
	}
}

// Publish delivers one event to roomID's subscribers.
func (b *Broadcaster) Publish(roomID uint, event string, data any) int {
	var delivered int
	b.Sequence(roomID, func(publish PublishFunc) {
		delivered = publish(event, data)
	})
	return delivered
}

// Sequence runs fn while holding roomID's delivery lock. Work done inside fn,
// such as persisting a message, is ordered with the events fn publishes
// relative to every other publish to the same room.
func (b *Broadcaster) Sequence(roomID uint, fn func(publish PublishFunc)) {
	lock := b.acquire(roomID)
	defer b.release(roomID, lock)

	fn(func(event string, data any) int {
		return b.fanOut(roomID, event, data)
	})
}

// fanOut must be called with roomID's lock held.
func (b *Broadcaster) fanOut(roomID uint, event string, data any) int {
	logCtx := b.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"event":   event,
	})

	frame, err := encodeFrame(event, data)
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode broadcast frame")
		return 0
	}

	subscribers := b.registry.SubscribersOf(roomID)
	delivered := 0
	for _, connID := range subscribers {
		if b.peers.deliver(connID, frame) {
			delivered++
			continue
		}
		logCtx.WithField("conn_id", connID).Debug("Dropped broadcast for unreachable connection")
	}

	logCtx.WithFields(logrus.Fields{
		"subscribers": len(subscribers),
		"delivered":   delivered,
	}).Debug("Broadcast fanned out")
	return delivered
}

func (b *Broadcaster) acquire(roomID uint) *roomLock {
	b.mu.Lock()
	lock, ok := b.locks[roomID]
	if !ok {
		lock = &roomLock{}
		b.locks[roomID] = lock
	}
	lock.refs++
	b.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (b *Broadcaster) release(roomID uint, lock *roomLock) {
	lock.mu.Unlock()

	b.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(b.locks, roomID)
	}
	b.mu.Unlock()
}
