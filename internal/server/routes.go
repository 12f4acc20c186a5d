// Package server wires HTTP handlers into a gorilla/mux router for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
)

// SetupRoutes configures the REST API, the WebSocket endpoint, health checks
// and the test page, wrapped in the hub's CORS policy.
func SetupRoutes(hub *Hub, st store.Store, log logrus.FieldLogger) http.Handler {
	api := NewAPI(st, hub, log)

	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", api.Health).Methods(http.MethodGet)
	r.HandleFunc("/rooms", api.ListRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms", api.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id:[0-9]+}/messages", api.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)

	return hub.origins.corsMiddleware(r)
}
