package server_test

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/protocol"
	"github.com/Tyrowin/relay/internal/server"
)

const testOrigin = "http://localhost:8080"

// newTestServer starts an isolated relay behind an httptest server.
func newTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.UploadDir = t.TempDir()
	if customize != nil {
		customize(&cfg)
	}

	srv, err := server.New(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	srv.StartHub()

	testServer := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		testServer.Close()
		if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
	})
	return srv, testServer
}

func buildWebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// connectWebSocket dials the relay with an allowed Origin header.
func connectWebSocket(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := dialer.Dial(buildWebSocketURL(baseURL), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connectClients dials n clients and waits until the hub has admitted them.
func connectClients(t *testing.T, srv *server.Server, baseURL string, n int) []*websocket.Conn {
	t.Helper()

	conns := make([]*websocket.Conn, 0, n)
	for i := 0; i < n; i++ {
		conns = append(conns, connectWebSocket(t, baseURL))
	}
	waitForStats(t, srv, n, 0)
	return conns
}

func sendEvent(t *testing.T, conn *websocket.Conn, event protocol.Event, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var f protocol.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return f
}

// expectFrame reads the next frame and compares it with the expected event
// and JSON data.
func expectFrame(t *testing.T, conn *websocket.Conn, event protocol.Event, data string) {
	t.Helper()
	f := readFrame(t, conn)
	if f.Event != event {
		t.Fatalf("Expected event %s, got %s (data %s)", event, f.Event, f.Data)
	}
	if !jsonEqual(t, data, string(f.Data)) {
		t.Fatalf("Expected %s data %s, got %s", event, data, f.Data)
	}
}

func expectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", msg)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

func waitForStats(t *testing.T, srv *server.Server, clients, users int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		gotClients, gotUsers := srv.Stats()
		if gotClients == clients && gotUsers == users {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients / %d users, got %d / %d", clients, users, gotClients, gotUsers)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func jsonEqual(t *testing.T, want, got string) bool {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("Invalid expected JSON %s: %v", want, err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		return false
	}
	return reflect.DeepEqual(w, g)
}
