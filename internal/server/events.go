package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manahiliqbal/chat-room/internal/store"
)

// Event names carried in Frame.Event.
const (
	EventConnected  = "connected"
	EventJoin       = "join"
	EventLeave      = "leave"
	EventMessage    = "message"
	EventTyping     = "typing"
	EventUserJoined = "user_joined"
)

// Frame is the envelope of every live-channel event, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRef is a room id as sent by clients: a JSON integer or a string of digits.
type RoomRef uint

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoomRef) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, strconv.IntSize)
	if err != nil {
		return fmt.Errorf("invalid room id %s: %w", b, err)
	}
	*r = RoomRef(id)
	return nil
}

// inboundPayload is the union of every client event's fields. Pointers tell
// a missing field apart from a zero value.
type inboundPayload struct {
	Room     *RoomRef `json:"room"`
	Username *string  `json:"username"`
	Content  *string  `json:"content"`
}

// ConnectedPayload acknowledges a new connection.
type ConnectedPayload struct {
	Status string `json:"status"`
}

// UserJoinedPayload announces a join to a room.
type UserJoinedPayload struct {
	Username string `json:"username"`
}

// TypingPayload signals that a user is typing in a room.
type TypingPayload struct {
	Username string `json:"username"`
}

// MessagePayload is the public shape of a persisted message, used both for
// live broadcasts and for REST history.
type MessagePayload struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessagePayload(msg store.Message) MessagePayload {
	return MessagePayload{
		ID:        msg.ID,
		Username:  msg.Username,
		Content:   msg.Content,
		Timestamp: msg.Timestamp.UTC(),
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return frame, nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
