package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

// newTestLogger returns a logger that discards output.
func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestStore opens an in-memory store that is closed with the test.
func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()

	st, err := store.Open(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// testConfig returns defaults with a rate limit loose enough for tests.
func testConfig() Config {
	cfg := *NewConfig()
	cfg.RateLimit = RateLimitConfig{Burst: 1000, RefillInterval: time.Second}
	return cfg
}

// testEnv is a running hub plus HTTP server over an in-memory store.
type testEnv struct {
	hub    *Hub
	store  *store.GormStore
	server *httptest.Server
}

// newTestEnv starts a hub and an httptest server serving SetupRoutes.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	st := newTestStore(t)
	logger := newTestLogger()
	hub := NewHub(cfg, st, logger)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, st, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &testEnv{hub: hub, store: st, server: srv}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
}

// connect dials the live channel and consumes the connected acknowledgment.
func (e *testEnv) connect(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, err := connectWebSocket(e.wsURL(), testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	frame := readFrame(t, conn)
	require.Equal(t, EventConnected, frame.Event)
	return conn
}

// connectWebSocket creates a WebSocket connection to the specified URL.
func connectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// sendEvent writes one client event frame.
func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: payload}))
}

// readFrame reads the next frame, failing the test after two seconds.
func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// expectNoFrame asserts that nothing arrives within wait.
func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	var frame Frame
	err := conn.ReadJSON(&frame)
	require.Error(t, err, "unexpected frame %s %s", frame.Event, frame.Data)
}

// decodeData unmarshals a frame's data into v.
func decodeData(t *testing.T, frame Frame, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(frame.Data, v))
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

// recordingPeers is a deliverer that records frames per connection id.
type recordingPeers struct {
	mu      sync.Mutex
	frames  map[string][][]byte
	offline map[string]bool
}

func newRecordingPeers() *recordingPeers {
	return &recordingPeers{
		frames:  make(map[string][][]byte),
		offline: make(map[string]bool),
	}
}

func (p *recordingPeers) deliver(connID string, frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline[connID] {
		return false
	}
	p.frames[connID] = append(p.frames[connID], frame)
	return true
}

func (p *recordingPeers) setOffline(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline[connID] = true
}

// received returns the frames delivered to connID, decoded.
func (p *recordingPeers) received(t *testing.T, connID string) []Frame {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Frame, 0, len(p.frames[connID]))
	for _, raw := range p.frames[connID] {
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		out = append(out, frame)
	}
	return out
}

// fakeParticipant implements Participant for dispatcher tests.
type fakeParticipant struct {
	id       string
	username string
}

func (p *fakeParticipant) ID() string              { return p.id }
func (p *fakeParticipant) SetUsername(name string) { p.username = name }
