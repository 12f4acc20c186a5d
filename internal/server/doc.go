// Package server implements the HTTP and WebSocket surface of the chat service.
//
// The implementation is organized into specialized files: the hub owns each
// connection's lifecycle, the registry tracks room subscriptions, the
// broadcaster fans events out per room and the dispatcher turns inbound
// events into store writes and broadcasts. REST handlers expose rooms and
// their history next to the live channel.
package server
