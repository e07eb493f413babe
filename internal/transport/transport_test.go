package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"collision-server/internal/netsync"
)

// ---------- helpers ----------

type fakeAuth struct{}

func (fakeAuth) ValidateToken(token string) (int64, string, error) {
	if token != "good" {
		return 0, "", errors.New("invalid token")
	}
	return 7, "relay", nil
}

func (fakeAuth) Login(name, secret, ip string) (int64, string, error) {
	if name == "relay" && secret == "hunter2hunter2" {
		return 7, "good", nil
	}
	return 0, "", errors.New("invalid peer name or secret")
}

func startTestServer(t *testing.T, opts Options) (*Hub, *httptest.Server, string) {
	t.Helper()
	if opts.Auth == nil {
		opts.Auth = fakeAuth{}
	}
	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub, func() map[string]any {
		return map[string]any{"tick": 42}
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/peer"
}

func dialPeer(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) netsync.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", msgType)
	}
	var f netsync.Frame
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, f netsync.Frame) {
	t.Helper()
	raw, err := netsync.EncodeFrame(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---------- tests ----------

func TestPeerRequiresToken(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}

	header := http.Header{"Authorization": []string{"Bearer good"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	defer conn.Close()
	if f := readFrame(t, conn); f.T != netsync.MsgWelcome || f.Peer != "relay" {
		t.Errorf("welcome = %+v", f)
	}
}

func TestPeerFramesReachInbox(t *testing.T) {
	inbox := netsync.NewInbox(0)
	hub, _, wsURL := startTestServer(t, Options{Inbox: inbox})
	conn := dialPeer(t, wsURL)
	readFrame(t, conn) // welcome

	sendFrame(t, conn, netsync.Frame{T: netsync.MsgCollisions, Events: []netsync.CollisionEvent{
		{ActorStateID: 1, HitStateID: 2},
		{ActorStateID: 1, HitStateID: 3},
	}})
	waitFor(t, "inbox events", func() bool { return inbox.Len() == 2 })

	events, dropped := inbox.Drain(nil)
	if dropped != 0 {
		t.Errorf("dropped = %d", dropped)
	}
	if events[0].HitStateID != 2 || events[1].HitStateID != 3 {
		t.Errorf("events out of arrival order: %+v", events)
	}
	if hub.Received() != 2 {
		t.Errorf("Received = %d, want 2", hub.Received())
	}
}

func TestUnknownAndTextFramesRejected(t *testing.T) {
	inbox := netsync.NewInbox(0)
	_, _, wsURL := startTestServer(t, Options{Inbox: inbox})
	conn := dialPeer(t, wsURL)
	readFrame(t, conn) // welcome

	sendFrame(t, conn, netsync.Frame{T: "bogus"})
	if f := readFrame(t, conn); f.T != netsync.MsgError {
		t.Errorf("bogus frame reply = %+v, want error", f)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"t":"collisions"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.T != netsync.MsgError {
		t.Errorf("text frame reply = %+v, want error", f)
	}
	if inbox.Len() != 0 {
		t.Errorf("inbox len = %d, want 0", inbox.Len())
	}
}

func TestBroadcastReachesPeers(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{})
	a := dialPeer(t, wsURL)
	b := dialPeer(t, wsURL)
	readFrame(t, a)
	readFrame(t, b)
	waitFor(t, "peers registered", func() bool { return hub.PeerCount() == 2 })

	hub.Broadcast(9, []netsync.CollisionEvent{{ActorStateID: 4, HitStateID: 5}})
	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		if f.T != netsync.MsgCollisions || f.Tick != 9 || len(f.Events) != 1 || f.Events[0].HitStateID != 5 {
			t.Errorf("broadcast frame = %+v", f)
		}
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{MaxPerIP: 1})
	dialPeer(t, wsURL)
	waitFor(t, "first connection tracked", func() bool { return hub.TotalConns() == 1 })

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	if err == nil {
		t.Fatal("second connection from same IP accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("response = %v, want 503", resp)
	}
}

func TestRateLimitDisconnects(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{RateLimit: 3})
	conn := dialPeer(t, wsURL)
	readFrame(t, conn)

	raw, _ := netsync.EncodeFrame(netsync.Frame{T: netsync.MsgCollisions})
	for i := 0; i < 5; i++ {
		// Writes after the server hangs up may fail.
		conn.WriteMessage(websocket.BinaryMessage, raw)
	}
	waitFor(t, "peer dropped", func() bool { return hub.TotalConns() == 0 })
}

func TestLoginAndHealth(t *testing.T) {
	_, srv, _ := startTestServer(t, Options{})

	resp, err := http.Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"name":"relay","secret":"hunter2hunter2"}`))
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	var lr loginResponse
	json.NewDecoder(resp.Body).Decode(&lr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || lr.Token != "good" {
		t.Errorf("login = %d %+v", resp.StatusCode, lr)
	}

	resp, err = http.Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"name":"relay","secret":"nope"}`))
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["tick"] != float64(42) {
		t.Errorf("health = %v", body)
	}
}

func TestUnregisterAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		// More than the unregister buffer holds.
		for i := 0; i < 200; i++ {
			hub.unregisterPeer(&Peer{name: "late"})
		}
		if hub.registerPeer(&Peer{name: "late"}) {
			t.Error("register accepted after shutdown")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after the hub stopped")
	}
}
