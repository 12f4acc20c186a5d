package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	errMalformedFrame = errors.New("malformed frame")
	errUnknownEvent   = errors.New("unknown event")
)

// Participant is the dispatcher's view of a live connection.
type Participant interface {
	ID() string
	SetUsername(name string)
}

// Dispatcher validates inbound live-channel events, applies their state
// changes and triggers the matching broadcasts.
//
// Dispatch errors are for logging only; they are never sent back to the
// client that produced the event.
type Dispatcher struct {
	store       store.Store
	registry    *Registry
	broadcaster *Broadcaster
	log         logrus.FieldLogger
}

// NewDispatcher wires a Dispatcher to its collaborators.
func NewDispatcher(st store.Store, registry *Registry, broadcaster *Broadcaster, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		store:       st,
		registry:    registry,
		broadcaster: broadcaster,
		log:         log.WithField("component", "dispatcher"),
	}
}

// Dispatch handles one raw frame received from p.
func (d *Dispatcher) Dispatch(ctx context.Context, p Participant, raw []byte) error {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", errMalformedFrame, err)
	}

	var payload inboundPayload
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return fmt.Errorf("%w: %s data: %v", errMalformedFrame, frame.Event, err)
		}
	}

	switch frame.Event {
	case EventJoin:
		return d.handleJoin(p, payload)
	case EventMessage:
		return d.handleMessage(ctx, payload)
	case EventTyping:
		return d.handleTyping(payload)
	case EventLeave:
		return d.handleLeave(p, payload)
	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, frame.Event)
	}
}

func (d *Dispatcher) handleJoin(p Participant, payload inboundPayload) error {
	roomID, username, err := requireRoomAndUser(payload)
	if err != nil {
		return err
	}

	d.registry.Subscribe(roomID, p.ID())
	p.SetUsername(username)

	d.log.WithFields(logrus.Fields{
		"conn_id":  p.ID(),
		"room_id":  roomID,
		"username": username,
	}).Info("Connection joined room")

	d.broadcaster.Publish(roomID, EventUserJoined, UserJoinedPayload{Username: username})
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, payload inboundPayload) error {
	roomID, username, err := requireRoomAndUser(payload)
	if err != nil {
		return err
	}
	if payload.Content == nil || *payload.Content == "" {
		return fmt.Errorf("content is required: %w", store.ErrValidation)
	}
	content := *payload.Content

	d.broadcaster.Sequence(roomID, func(publish PublishFunc) {
		var msg store.Message
		msg, err = d.store.AppendMessage(ctx, roomID, username, content)
		if err != nil {
			return
		}
		publish(EventMessage, newMessagePayload(msg))
	})
	return err
}

func (d *Dispatcher) handleTyping(payload inboundPayload) error {
	roomID, username, err := requireRoomAndUser(payload)
	if err != nil {
		return err
	}

	d.broadcaster.Publish(roomID, EventTyping, TypingPayload{Username: username})
	return nil
}

func (d *Dispatcher) handleLeave(p Participant, payload inboundPayload) error {
	if payload.Room == nil {
		return fmt.Errorf("room is required: %w", store.ErrValidation)
	}

	d.registry.Unsubscribe(uint(*payload.Room), p.ID())
	return nil
}

func requireRoomAndUser(payload inboundPayload) (uint, string, error) {
	if payload.Room == nil {
		return 0, "", fmt.Errorf("room is required: %w", store.ErrValidation)
	}
	if payload.Username == nil || strings.TrimSpace(*payload.Username) == "" {
		return 0, "", fmt.Errorf("username is required: %w", store.ErrValidation)
	}
	return uint(*payload.Room), *payload.Username, nil
}
