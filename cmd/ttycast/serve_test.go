package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHubServer(hub *eventHub) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(hub.handleViewer))
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func waitForViewers(t *testing.T, hub *eventHub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		got := len(hub.clients)
		hub.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("viewer count never reached %d", n)
}

func TestHubReplayAndLiveBroadcast(t *testing.T) {
	hub := newEventHub()
	srv := newHubServer(hub)
	defer srv.Close()
	defer hub.Close()

	// Events sent before anyone connects are replayed to late joiners.
	hub.Broadcast([]byte(`{"type":"config","width":80,"height":24}`))
	hub.Broadcast([]byte(`{"type":"line","row":0}`))

	conn := dialHub(t, srv)
	defer conn.Close()

	hub.Broadcast([]byte(`{"type":"line","row":1}`))

	want := []string{
		`{"type":"config","width":80,"height":24}`,
		`{"type":"line","row":0}`,
		`{"type":"line","row":1}`,
	}
	for i, w := range want {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message %d: %v", i, err)
		}
		if string(msg) != w {
			t.Errorf("message %d = %s, want %s", i, msg, w)
		}
	}
}

func TestHubCloseDisconnectsViewer(t *testing.T) {
	hub := newEventHub()
	srv := newHubServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitForViewers(t, hub, 1)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded after hub close")
	}

	// A viewer arriving after close is turned away immediately.
	late := dialHub(t, srv)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("late viewer was not disconnected")
	}
}

func TestHubDropsDisconnectedViewer(t *testing.T) {
	hub := newEventHub()
	srv := newHubServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	waitForViewers(t, hub, 1)
	conn.Close()
	waitForViewers(t, hub, 0)

	// Broadcasting with no viewers still records history.
	hub.Broadcast([]byte(`{"type":"line","row":2}`))
	hub.mu.Lock()
	n := len(hub.history)
	hub.mu.Unlock()
	if n != 1 {
		t.Errorf("history has %d entries, want 1", n)
	}
}
