package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegistrySubscribeIsIdempotent verifies that repeated subscriptions
// leave a single entry.
func TestRegistrySubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Subscribe(1, "a")
	r.Subscribe(1, "a")

	assert.Equal(t, []string{"a"}, r.SubscribersOf(1))
	assert.Equal(t, 1, r.SubscriberCount(1))
	assert.Equal(t, []uint{1}, r.RoomsOf("a"))
}

func TestRegistryUnsubscribe(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, "a")
	r.Subscribe(1, "b")

	r.Unsubscribe(1, "a")
	assert.Equal(t, []string{"b"}, r.SubscribersOf(1))
	assert.Empty(t, r.RoomsOf("a"))

	// Absent connections and rooms are no-ops.
	r.Unsubscribe(1, "a")
	r.Unsubscribe(99, "b")
	assert.Equal(t, []string{"b"}, r.SubscribersOf(1))
}

// TestRegistryPrunesEmptyRooms verifies that a room disappears with its
// last subscriber.
func TestRegistryPrunesEmptyRooms(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, "a")
	assert.Equal(t, 1, r.RoomCount())

	r.Unsubscribe(1, "a")
	assert.Zero(t, r.RoomCount())
	assert.Empty(t, r.SubscribersOf(1))
}

func TestRegistryUnsubscribeAll(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(3, "a")
	r.Subscribe(1, "a")
	r.Subscribe(1, "b")
	r.Subscribe(2, "a")

	left := r.UnsubscribeAll("a")

	assert.Equal(t, []uint{1, 2, 3}, left)
	assert.Equal(t, []string{"b"}, r.SubscribersOf(1))
	assert.Empty(t, r.SubscribersOf(2))
	assert.Empty(t, r.SubscribersOf(3))
	assert.Empty(t, r.RoomsOf("a"))
	assert.Equal(t, 1, r.RoomCount())

	assert.Empty(t, r.UnsubscribeAll("a"))
	assert.Empty(t, r.UnsubscribeAll("never-joined"))
}

// TestRegistrySnapshotIsACopy verifies that a snapshot does not change with
// later subscriptions.
func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, "a")

	snapshot := r.SubscribersOf(1)
	r.Subscribe(1, "b")
	r.Unsubscribe(1, "a")

	assert.Equal(t, []string{"a"}, snapshot)
	assert.Equal(t, []string{"b"}, r.SubscribersOf(1))

	snapshot[0] = "mutated"
	assert.Equal(t, []string{"b"}, r.SubscribersOf(1))
}

// TestRegistryConcurrentMutations verifies that concurrent joins and
// disconnects leave no stale connection ids behind.
func TestRegistryConcurrentMutations(t *testing.T) {
	r := NewRegistry()

	const conns = 50
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", n)
			for room := uint(1); room <= 5; room++ {
				r.Subscribe(room, id)
				_ = r.SubscribersOf(room)
			}
			if n%2 == 0 {
				r.UnsubscribeAll(id)
			}
		}(i)
	}
	wg.Wait()

	for room := uint(1); room <= 5; room++ {
		subscribers := r.SubscribersOf(room)
		assert.Len(t, subscribers, conns/2)
		for _, id := range subscribers {
			var n int
			_, err := fmt.Sscanf(id, "conn-%d", &n)
			assert.NoError(t, err)
			assert.Equal(t, 1, n%2, "stale subscriber %s in room %d", id, room)
		}
	}
}
