// Package store persists chat rooms and their message history.
//
// The Store interface is the only thing the rest of the service sees; the
// GORM-backed implementation keeps SQLite specifics out of the transport code.
package store

import (
	"context"
	"time"
)

// Room is a named channel that groups messages and live subscribers.
type Room struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// TableName returns the table name for Room.
func (Room) TableName() string {
	return "rooms"
}

// Message is one immutable chat line posted to a room.
type Message struct {
	ID        uint      `gorm:"primaryKey;index:idx_messages_room_time,priority:3" json:"id"`
	RoomID    uint      `gorm:"not null;index:idx_messages_room_time,priority:1" json:"-"`
	Username  string    `gorm:"not null" json:"username"`
	Content   string    `gorm:"not null" json:"content"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_room_time,priority:2" json:"timestamp"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// Store is the durable home of rooms and messages.
//
// Every write is atomic per call. Implementations must serialize concurrent
// writers so that room names stay unique and no two messages of a room share
// the same (timestamp, id) pair.
type Store interface {
	CreateRoom(ctx context.Context, name string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	GetRoom(ctx context.Context, id uint) (Room, error)
	AppendMessage(ctx context.Context, roomID uint, username, content string) (Message, error)
	ListMessages(ctx context.Context, roomID uint) ([]Message, error)
	Close() error
}
