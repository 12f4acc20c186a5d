// Package server exposes HTTP handlers, including WebSocket upgrades, the
// rooms REST API, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
)

const maxRequestBodyBytes = 1 << 20

// WebSocketHandler upgrades GET requests on the live channel and hands the
// new connection to the hub, which acknowledges it and starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).WithField("remote_addr", r.RemoteAddr).Warn("WebSocket upgrade failed")
			return
		}

		hub.Register(NewClient(conn, hub, r.RemoteAddr))
	}
}

// API serves the rooms REST endpoints.
type API struct {
	store store.Store
	hub   *Hub
	log   logrus.FieldLogger
}

// NewAPI creates the REST handlers over st. hub is only used for health
// reporting.
func NewAPI(st store.Store, hub *Hub, log logrus.FieldLogger) *API {
	return &API{
		store: st,
		hub:   hub,
		log:   log.WithField("component", "api"),
	}
}

type createRoomRequest struct {
	Name *string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// ListRooms handles GET /rooms.
func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.store.ListRooms(r.Context())
	if err != nil {
		a.handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// CreateRoom handles POST /rooms.
func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == nil || *req.Name == "" {
		writeError(w, http.StatusBadRequest, "Room name is required")
		return
	}

	room, err := a.store.CreateRoom(r.Context(), *req.Name)
	if err != nil {
		a.handleStoreError(w, err)
		return
	}

	a.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"name":    room.Name,
	}).Info("Room created")
	writeJSON(w, http.StatusCreated, room)
}

// ListMessages handles GET /rooms/{id}/messages.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, strconv.IntSize)
	if err != nil {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	room, err := a.store.GetRoom(r.Context(), uint(roomID))
	if err != nil {
		a.handleStoreError(w, err)
		return
	}

	messages, err := a.store.ListMessages(r.Context(), room.ID)
	if err != nil {
		a.handleStoreError(w, err)
		return
	}

	out := make([]MessagePayload, 0, len(messages))
	for _, msg := range messages {
		out = append(out, newMessagePayload(msg))
	}
	writeJSON(w, http.StatusOK, out)
}

// Health reports liveness along with the live-channel load.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.hub != nil {
		resp.Connections = a.hub.ClientCount()
		resp.Rooms = a.hub.Registry().RoomCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, "Room name is required")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Room name already exists")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
	default:
		a.log.WithError(err).Error("Unhandled store error")
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Error writing JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// HealthHandler provides a plain text liveness probe on the root path.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

// TestPageHandler serves an HTML page for trying the rooms API and the live
// channel from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		logrus.WithError(err).Warn("Error writing HTML response")
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Room Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Room Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="roomName" placeholder="New room name">
        <button onclick="createRoom()">Create room</button>
        <button onclick="loadRooms()">List rooms</button>
    </div>
    <div>
        <input type="text" id="roomId" placeholder="Room id" size="6">
        <input type="text" id="username" placeholder="Username">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
        <button onclick="join()">Join</button>
        <button onclick="loadHistory()">History</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." size="50">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function log(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            eventsDiv.appendChild(el);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function room() { return document.getElementById('roomId').value.trim(); }
        function username() { return document.getElementById('username').value.trim(); }

        function emit(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                log(frame.event + ': ' + JSON.stringify(frame.data), frame.event === 'message' ? 'green' : 'gray');
            };
            ws.onclose = function() { log('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { log('Connection error'); };
        }

        function join() { emit('join', {room: room(), username: username()}); }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value.trim()) {
                emit('message', {room: room(), username: username(), content: input.value});
                input.value = '';
            }
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            } else {
                emit('typing', {room: room(), username: username()});
            }
        });

        function createRoom() {
            fetch('/rooms', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({name: document.getElementById('roomName').value})
            }).then(r => r.json().then(body => log('POST /rooms ' + r.status + ' ' + JSON.stringify(body), 'blue')));
        }

        function loadRooms() {
            fetch('/rooms').then(r => r.json()).then(body => log('rooms: ' + JSON.stringify(body), 'blue'));
        }

        function loadHistory() {
            fetch('/rooms/' + room() + '/messages')
                .then(r => r.json().then(body => log('history ' + r.status + ': ' + JSON.stringify(body), 'blue')));
        }
    </script>
</body>
</html>`
